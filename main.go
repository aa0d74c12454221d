package main

import "github.com/xrsl/tailor/cmd"

func main() {
	cmd.Execute()
}
