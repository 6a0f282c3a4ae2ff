// The main package for the insightcrawler executable.
package main

import (
	"github.com/JakeFAU/insight-crawler/cmd"
)

func main() {
	cmd.Execute()
}
