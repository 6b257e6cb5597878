package main

import "github.com/specsync/specsync/cmd/specsync-ctl/cmd"

func main() {
	cmd.Execute()
}
