package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"fractal/internal/common"
	fractalNet "fractal/internal/net"

	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the ledger server")
	callerHex := flag.String("caller", "", "Caller address (compulsory)")
	action := flag.String("action", "heartbeat",
		"Action to perform: ['heartbeat', 'set-venue', 'mint', 'enable', 'list', 'delist', 'update-price', 'trade', 'balance', 'price', 'owners', 'items']")

	item := flag.Uint64("item", 1, "Item id")
	ownerHex := flag.String("owner", "", "Owner address for list, delist, balance and items")
	fromHex := flag.String("from", "", "Seller address for trade")
	toHex := flag.String("to", "", "Buyer address for trade, or the venue for set-venue")
	amount := flag.Uint64("amount", 0, "Number of votes")
	priceStr := flag.String("price", "0", "Unit price, up to three decimals")
	metadata := flag.String("metadata", "", "Item metadata for mint")
	timeout := flag.Duration("timeout", 5*time.Second, "Dial timeout")

	flag.Parse()

	// Validation
	caller, err := common.HexToAddress(*callerHex)
	if err != nil {
		fmt.Println("Error: -caller must be a hex address.")
		flag.Usage()
		os.Exit(1)
	}
	unitPrice, err := common.ParsePrice(*priceStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -price")
	}

	// Connect to Server
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	client, err := fractalNet.Dial(ctx, *serverAddr, caller)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to server")
	}
	defer client.Close()

	address := func(name, s string) common.Address {
		addr, err := common.HexToAddress(s)
		if err != nil {
			log.Fatal().Err(err).Msgf("invalid -%s", name)
		}
		return addr
	}
	id := common.ItemID(*item)

	// Execute Action
	switch strings.ToLower(*action) {
	case "heartbeat":
		digest, err := client.Heartbeat()
		check(err)
		fmt.Printf("state digest: %x\n", digest)

	case "set-venue":
		check(client.SetVenue(address("to", *toHex)))
		fmt.Println("-> venue set")

	case "mint":
		minted, err := client.Mint(*metadata)
		check(err)
		fmt.Printf("-> minted item %d\n", minted)

	case "enable":
		check(client.Enable(id))
		fmt.Printf("-> item %d enabled\n", id)

	case "list":
		check(client.ListForTrade(id, address("owner", *ownerHex), *amount, unitPrice))
		fmt.Printf("-> listed %d votes of item %d @ %s\n", *amount, id, *priceStr)

	case "delist":
		check(client.Delist(id, address("owner", *ownerHex), *amount))
		fmt.Printf("-> delisted %d votes of item %d\n", *amount, id)

	case "update-price":
		stats, err := client.UpdatePrice(id, unitPrice, *amount)
		check(err)
		fmt.Printf("-> item %d: %s\n", id, stats)

	case "trade":
		stats, err := client.ExecuteTrade(address("from", *fromHex), address("to", *toHex), id, unitPrice, *amount)
		check(err)
		fmt.Printf("-> traded %d votes of item %d @ %s, %s\n", *amount, id, *priceStr, stats)

	case "balance":
		balance, err := client.Balance(id, address("owner", *ownerHex))
		check(err)
		fmt.Printf("item %d: %s\n", id, balance)

	case "price":
		stats, err := client.Price(id)
		check(err)
		fmt.Printf("item %d: %s\n", id, stats)

	case "owners":
		owners, err := client.Owners(id)
		check(err)
		for _, owner := range owners {
			fmt.Println(owner.Hex())
		}

	case "items":
		items, err := client.Items(address("owner", *ownerHex))
		check(err)
		for _, it := range items {
			fmt.Println(it)
		}

	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}

	// Print events the server pushed while we waited.
	for _, event := range client.Events() {
		printEvent(event)
	}
}

func check(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("request rejected")
	}
}

func printEvent(e common.Event) {
	fmt.Printf("[EVENT] %s item=%d", e.Kind, e.Item)
	if e.From != common.ZeroAddress {
		fmt.Printf(" from=%s", e.From.Hex())
	}
	if e.To != common.ZeroAddress {
		fmt.Printf(" to=%s", e.To.Hex())
	}
	if e.Amount > 0 {
		fmt.Printf(" amount=%d", e.Amount)
	}
	if e.UnitPrice > 0 {
		fmt.Printf(" price=%s", common.FormatPrice(uint256.NewInt(e.UnitPrice)))
	}
	fmt.Println()
}
