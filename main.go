package main

import "github.com/vibast-solutions/ms-go-menu-auth/cmd"

func main() {
	cmd.Execute()
}
