// Command linkresolver serves and resolves Amazon product links.
package main

import (
	"os"

	"github.com/giftlist/linkresolver/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
