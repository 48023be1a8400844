// Command pagekit runs page-object UI automation scripts.
package main

import "github.com/devicelab-dev/pagekit/pkg/cli"

func main() {
	cli.Execute()
}
