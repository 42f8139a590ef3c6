package main

import "github.com/triagelabs/searchgate/app/cmd"

func main() {
	cmd.Execute()
}
