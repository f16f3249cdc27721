package main

import "github.com/AntoineMrtl/oracle-swap-back/internal/cli"

func main() {
	cli.Execute()
}
