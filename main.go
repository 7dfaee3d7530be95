package main

import (
	cmd "github.com/xplain-ai/xplain-server/cmd/xplain"
)

func main() {
	cmd.Execute()
}
