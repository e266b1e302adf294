// Command matchctl is a minimal CLI client for matchd: it places, cancels
// or modifies orders over the wire protocol and prints execution reports
// as they arrive. Grounded on the teacher's cmd/client/client.go.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"garm/internal/domain"
	"garm/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the matchd instance")
	action := flag.String("action", "place", "action to perform: place, cancel, modify")
	sideStr := flag.String("side", "buy", "order side: buy or sell")
	typeStr := flag.String("type", "limit", "order type: limit, market, stop_loss, stop_limit")
	price := flag.Int64("price", 0, "limit price, in ticks")
	stopPrice := flag.Int64("stop-price", 0, "stop price, in ticks")
	quantity := flag.Int64("qty", 10, "order quantity")
	orderID := flag.Uint64("order-id", 0, "order id (required for cancel/modify)")
	clientOrderID := flag.String("client-order-id", "", "client correlation id (generated if empty)")
	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	go readReports(conn)

	switch strings.ToLower(*action) {
	case "place":
		if *clientOrderID == "" {
			*clientOrderID = uuid.NewString()
		}
		msg := wire.NewOrderMessage{
			Side:          parseSide(*sideStr),
			Type:          parseOrderType(*typeStr),
			Quantity:      *quantity,
			Price:         domain.Ticks(*price),
			StopPrice:     domain.Ticks(*stopPrice),
			ClientOrderID: *clientOrderID,
		}
		if _, err := conn.Write(wire.EncodeNewOrder(msg)); err != nil {
			log.Fatalf("failed to send order: %v", err)
		}
		fmt.Printf("-> submitted %s %s qty=%d client_order_id=%s\n", msg.Side, msg.Type, msg.Quantity, msg.ClientOrderID)

	case "cancel":
		if *orderID == 0 {
			log.Fatal("-order-id is required for cancel")
		}
		if _, err := conn.Write(wire.EncodeCancelOrder(wire.CancelOrderMessage{OrderID: *orderID})); err != nil {
			log.Fatalf("failed to send cancel: %v", err)
		}
		fmt.Printf("-> cancel requested for order %d\n", *orderID)

	case "modify":
		if *orderID == 0 {
			log.Fatal("-order-id is required for modify")
		}
		msg := wire.ModifyOrderMessage{OrderID: *orderID}
		if *quantity > 0 {
			msg.HasQuantity = true
			msg.Quantity = *quantity
		}
		if *price > 0 {
			msg.HasPrice = true
			msg.Price = domain.Ticks(*price)
		}
		if _, err := conn.Write(wire.EncodeModifyOrder(msg)); err != nil {
			log.Fatalf("failed to send modify: %v", err)
		}
		fmt.Printf("-> modify requested for order %d\n", *orderID)

	default:
		log.Fatalf("unknown action %q", *action)
	}

	fmt.Println("listening for reports (ctrl-c to exit)...")
	select {}
}

func parseSide(s string) domain.Side {
	if strings.ToLower(s) == "sell" {
		return domain.Sell
	}
	return domain.Buy
}

func parseOrderType(s string) domain.OrderType {
	switch strings.ToLower(s) {
	case "market":
		return domain.Market
	case "stop_loss", "stop-loss":
		return domain.StopLoss
	case "stop_limit", "stop-limit":
		return domain.StopLimit
	default:
		return domain.Limit
	}
}

func readReports(conn net.Conn) {
	for {
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}
		report, err := wire.DecodeReport(buf[:n])
		if err != nil {
			log.Printf("failed to decode report: %v", err)
			continue
		}
		printReport(report)
	}
}

func printReport(r wire.Report) {
	switch r.MessageType {
	case wire.ErrorReport:
		fmt.Printf("\n[ERROR] order=%d: %s\n", r.OrderID, r.Err)
	case wire.AckReport:
		fmt.Printf("\n[ACK] order=%d\n", r.OrderID)
	case wire.ExecutionReport:
		fmt.Printf("\n[EXECUTION] order=%d side=%s qty=%d price=%s\n",
			r.OrderID, r.Side, r.Quantity, strconv.FormatInt(int64(r.Price), 10))
	}
}
