package main

import (
	"amazon-order-export/cmd/amazon-orders/commands"
	"amazon-order-export/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
