package main

import "github.com/edurelay/ltirelay/cmd"

func main() {
	cmd.Execute()
}
