package main

import "github.com/user/censai/cmd"

func main() {
	cmd.Execute()
}
