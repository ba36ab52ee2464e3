// Command wagerctl is a terminal client for the wager-engine API: log
// in, browse markets, place wagers, and watch prices without a browser.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"github.com/udoglabs/wager-engine/internal/model"
	"github.com/udoglabs/wager-engine/internal/prices"
)

const defaultAPIBase = "http://localhost:8080"

func main() {
	_ = godotenv.Load()

	apiBase := flag.String("api", envOr("WAGER_API", defaultAPIBase), "wager-engine base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{base: strings.TrimRight(*apiBase, "/"), http: &http.Client{Timeout: 15 * time.Second}}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "login":
		err = c.login()
	case "logout":
		err = c.logout()
	case "me":
		err = c.me()
	case "markets":
		err = c.markets()
	case "bet":
		err = c.bet(args)
	case "portfolio":
		err = c.portfolio()
	case "balance":
		err = c.balance()
	case "transactions":
		err = c.transactions()
	case "prices":
		err = c.prices()
	case "convert":
		err = c.convert(args)
	case "alerts":
		err = c.alerts(args)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: wagerctl [-api URL] <command> [args]

commands:
  login                          connect the demo wallet and bind a user
  logout                         clear the session
  me                             show the bound user
  markets                        list open markets
  bet <market-id> <side> <amt>   place a wager (side: yes|no)
  portfolio                      show positions and payouts
  balance                        show token balances
  transactions                   show wager transactions
  prices                         show the market-data snapshot
  convert <coin> <currency> [n]  convert n coins to another currency
  alerts [add <coin> <above|below> <price>] [rm <id>]
                                 list or manage price alerts
`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// client talks to the wager-engine HTTP API.
type client struct {
	base string
	http *http.Client
}

func (c *client) call(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// --- Commands ---

func (c *client) login() error {
	var user model.User
	if err := c.call("POST", "/api/v1/session/login", nil, &user); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", user.Username, shortAddr(user.WalletAddress))
	return nil
}

func (c *client) logout() error {
	if err := c.call("POST", "/api/v1/session/logout", nil, nil); err != nil {
		return err
	}
	fmt.Println("logged out")
	return nil
}

func (c *client) me() error {
	var user model.User
	if err := c.call("GET", "/api/v1/session/me", nil, &user); err != nil {
		return err
	}
	fmt.Printf("%s\n  wallet: %s\n  email:  %s\n  id:     %s\n",
		user.Username, user.WalletAddress, user.Email, user.ID)
	return nil
}

func (c *client) markets() error {
	var markets []model.Market
	if err := c.call("GET", "/api/v1/markets", nil, &markets); err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Market", "Category", "Yes", "No", "Volume", "Deadline")
	for _, m := range markets {
		table.Append(
			shortID(m.ID),
			truncate(m.Title, 45),
			m.Category,
			m.YesPrice.StringFixed(2),
			m.NoPrice.StringFixed(2),
			m.TotalVolume.StringFixed(0),
			m.Deadline.Format("2006-01-02"),
		)
	}
	table.Render()
	return nil
}

func (c *client) bet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: wagerctl bet <market-id> <yes|no> <amount>")
	}
	amount, err := decimal.NewFromString(args[2])
	if err != nil {
		return fmt.Errorf("invalid amount %q", args[2])
	}

	var result struct {
		Position    model.Position    `json:"position"`
		Transaction model.Transaction `json:"transaction"`
		Balance     model.Balance     `json:"balance"`
		Markets     []model.Market    `json:"markets"`
	}
	body := map[string]any{"market_id": args[0], "side": args[1], "amount": amount}
	if err := c.call("POST", "/api/v1/wagers", body, &result); err != nil {
		return err
	}

	fmt.Printf("wager placed: %s %s at %s\n",
		result.Position.Shares.StringFixed(2),
		strings.ToUpper(result.Position.Side),
		result.Position.Price.StringFixed(2),
	)
	fmt.Printf("  tx:      %s\n", result.Transaction.TxHash)
	fmt.Printf("  balance: %s %s\n", result.Balance.Balance.StringFixed(2), result.Balance.TokenSymbol)
	for _, m := range result.Markets {
		if m.ID == result.Position.MarketID {
			fmt.Printf("  pool:    %s\n", m.TotalVolume.StringFixed(0))
			break
		}
	}
	return nil
}

func (c *client) portfolio() error {
	var p model.Portfolio
	if err := c.call("GET", "/api/v1/portfolio", nil, &p); err != nil {
		return err
	}

	if len(p.Positions) == 0 {
		fmt.Println("no positions")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Market", "Side", "Stake", "Price", "Odds", "Payout", "Status")
	for _, pos := range p.Positions {
		table.Append(
			truncate(pos.MarketTitle, 40),
			strings.ToUpper(pos.Side),
			pos.Shares.StringFixed(2),
			pos.Price.StringFixed(2),
			pos.Odds.StringFixed(2),
			pos.PotentialPayout.StringFixed(2),
			pos.MarketStatus,
		)
	}
	table.Render()

	fmt.Printf("wagers: %d (%d active)  staked: %s  potential payout: %s\n",
		p.TotalWagers, p.ActiveWagers,
		p.TotalWagered.StringFixed(2), p.PotentialPayout.StringFixed(2))
	return nil
}

func (c *client) balance() error {
	var balances []model.Balance
	if err := c.call("GET", "/api/v1/balances", nil, &balances); err != nil {
		return err
	}
	for _, b := range balances {
		fmt.Printf("%s: %s\n", b.TokenSymbol, b.Balance.StringFixed(2))
	}
	return nil
}

func (c *client) transactions() error {
	var txs []model.Transaction
	if err := c.call("GET", "/api/v1/transactions", nil, &txs); err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Println("no transactions")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("When", "Type", "Side", "Shares", "Price", "Total", "Tx")
	for _, tx := range txs {
		table.Append(
			tx.CreatedAt.Format("01-02 15:04"),
			tx.Type,
			strings.ToUpper(tx.Side),
			tx.Shares.StringFixed(2),
			tx.Price.StringFixed(2),
			tx.TotalAmount.StringFixed(2),
			shortID(tx.TxHash),
		)
	}
	table.Render()
	return nil
}

func (c *client) prices() error {
	var snap prices.Snapshot
	if err := c.call("GET", "/api/v1/prices", nil, &snap); err != nil {
		return err
	}
	if snap.FetchedAt.IsZero() {
		fmt.Println("no market data yet")
		return nil
	}

	if snap.Global != nil {
		btcDominance := snap.Global.MarketCapPercentage["btc"]
		fmt.Printf("global: %d coins, BTC dominance %.1f%%, 24h %+.2f%%\n",
			snap.Global.ActiveCryptocurrencies, btcDominance, snap.Global.MarketCapChange24h)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Coin", "Price", "24h", "Market Cap")
	for _, coin := range snap.TopCoins {
		table.Append(
			fmt.Sprintf("%d", coin.MarketCapRank),
			fmt.Sprintf("%s (%s)", coin.Name, strings.ToUpper(coin.Symbol)),
			fmt.Sprintf("$%.2f", coin.CurrentPrice),
			fmt.Sprintf("%+.2f%%", coin.PriceChange24h),
			fmt.Sprintf("$%.0fM", coin.MarketCap/1e6),
		)
	}
	table.Render()

	fmt.Printf("as of %s\n", snap.FetchedAt.Format(time.RFC3339))
	return nil
}

func (c *client) convert(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return fmt.Errorf("usage: wagerctl convert <coin-id> <currency> [amount]")
	}
	query := url.Values{"from": {args[0]}, "to": {args[1]}}
	if len(args) == 3 {
		query.Set("amount", args[2])
	}

	var result struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
		Rate   float64 `json:"rate"`
		Result float64 `json:"result"`
	}
	if err := c.call("GET", "/api/v1/prices/convert?"+query.Encode(), nil, &result); err != nil {
		return err
	}
	fmt.Printf("%g %s = %g %s (rate %g)\n",
		result.Amount, result.From, result.Result, strings.ToUpper(result.To), result.Rate)
	return nil
}

func (c *client) alerts(args []string) error {
	if len(args) == 0 {
		var alerts []model.Alert
		if err := c.call("GET", "/api/v1/alerts", nil, &alerts); err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Println("no alerts")
			return nil
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("ID", "Coin", "Condition", "Target", "Fired")
		for _, a := range alerts {
			fired := "-"
			if a.Triggered && a.TriggeredAt != nil {
				fired = a.TriggeredAt.Format("01-02 15:04")
			}
			table.Append(shortID(a.ID), a.CoinName, a.Condition, a.TargetPrice.StringFixed(2), fired)
		}
		table.Render()
		return nil
	}

	switch args[0] {
	case "add":
		if len(args) != 4 {
			return fmt.Errorf("usage: wagerctl alerts add <coin-id> <above|below> <price>")
		}
		target, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("invalid price %q", args[3])
		}
		body := map[string]any{
			"coin_id":      args[1],
			"coin_name":    capitalize(args[1]),
			"coin_symbol":  args[1],
			"condition":    args[2],
			"target_price": target,
		}
		var alert model.Alert
		if err := c.call("POST", "/api/v1/alerts", body, &alert); err != nil {
			return err
		}
		fmt.Printf("alert %s created\n", shortID(alert.ID))
		return nil
	case "rm":
		if len(args) != 2 {
			return fmt.Errorf("usage: wagerctl alerts rm <id>")
		}
		return c.call("DELETE", "/api/v1/alerts/"+args[1], nil, nil)
	default:
		return fmt.Errorf("unknown alerts subcommand %q", args[0])
	}
}

// --- Formatting helpers ---

func shortID(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:8] + ".."
}

func shortAddr(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
