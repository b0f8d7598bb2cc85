// Command grocery is a CLI client for the Personal Grocery Manager
// service: accounts, groups, receipt uploads, item allocations, and
// cost splitting.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/PersonalGroceryManager/go-client/internal/auth"
	"github.com/PersonalGroceryManager/go-client/internal/calculator"
	"github.com/PersonalGroceryManager/go-client/internal/config"
	"github.com/PersonalGroceryManager/go-client/internal/metrics"
	"github.com/PersonalGroceryManager/go-client/internal/models"
	"github.com/PersonalGroceryManager/go-client/internal/service"
	"github.com/PersonalGroceryManager/go-client/internal/storage/sqlite"
	"github.com/PersonalGroceryManager/go-client/internal/transport"
	"github.com/PersonalGroceryManager/go-client/pkg/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `grocery CLI
Usage:
  grocery [-api URL] [-timeout DUR] [-metrics-addr ADDR] <cmd> [args]

Commands:
  version
  register          -u <username> -e <email> -p <password>
  login             -u <username> -p <password>            (saves tokens)
  logout
  whoami
  groups
  group-create      -name <name> [-desc <description>]
  group-join        -name <name>
  group-members     -name <name>
  receipts          -group <name>
  upload            -group <name> -file <path>
  rm-receipt        -id <receiptID>
  items             -id <receiptID>
  allocations       -id <receiptID>
  allocate          -id <receiptID> -user <username> -item <itemID> -unit <n>
  receipt-add-user  -id <receiptID> -user <username>
  split             -id <receiptID> [-paid-by <username>] [-save]
  costs
`)
	os.Exit(2)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// die prints a terse failure line and exits non-zero; details have
// already been logged by the service layer.
func die(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

// app bundles the wired-up services for command handlers.
type app struct {
	session  *auth.Session
	auth     *service.AuthService
	groups   *service.GroupService
	receipts *service.ReceiptService
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad configuration:", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel)

	apiURL := flag.String("api", cfg.APIBaseURL, "API base URL")
	timeout := flag.Duration("timeout", cfg.RequestTimeout, "per-request timeout")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddress, "serve Prometheus metrics on this address (debug)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("grocery %s (%s)\n", version, buildDate)
		return
	}

	store, err := sqlite.New(cfg.CredentialDBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cannot open credential store:", err)
		os.Exit(1)
	}
	defer store.Close()

	session := auth.NewSession(store, cfg.JWTVerifyKey)
	client := transport.New(*apiURL, session, *timeout)
	groups := service.NewGroupService(client, session)
	a := &app{
		session:  session,
		auth:     service.NewAuthService(client, session),
		groups:   groups,
		receipts: service.NewReceiptService(client, groups),
	}

	if *metricsAddr != "" {
		go func() {
			slog.Info("serving metrics", "address", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, metrics.Handler()); err != nil {
				slog.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a.run(ctx, cmd, args)
}

func (a *app) run(ctx context.Context, cmd string, args []string) {
	switch cmd {

	case "register":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("u", "", "username")
		email := fs.String("e", "", "email")
		pass := fs.String("p", "", "password")
		fs.Parse(args)
		if !a.auth.Register(ctx, *user, *email, *pass) {
			die("registration failed")
		}
		fmt.Println("registered; now log in")

	case "login":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		user := fs.String("u", "", "username")
		pass := fs.String("p", "", "password")
		fs.Parse(args)
		if !a.auth.Login(ctx, *user, *pass) {
			die("login failed")
		}
		fmt.Println("logged in")

	case "logout":
		a.auth.Logout()
		fmt.Println("logged out")

	case "whoami":
		if !a.session.IsAuthenticated() {
			die("not logged in")
		}
		id, ok := a.session.UserID()
		if !ok {
			die("token holds no user id")
		}
		name := a.auth.ResolveUsername(ctx, id)
		printJSON(models.User{ID: id, Username: name})

	case "groups":
		printJSON(a.groups.JoinedGroups(ctx))

	case "group-create":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "group name")
		desc := fs.String("desc", "", "description")
		fs.Parse(args)
		if !a.groups.Create(ctx, *name, *desc) {
			die("group creation failed")
		}
		fmt.Println("group created")

	case "group-join":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "group name")
		fs.Parse(args)
		if !a.groups.Join(ctx, *name) {
			die("could not join group")
		}
		fmt.Println("joined group")

	case "group-members":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		name := fs.String("name", "", "group name")
		fs.Parse(args)
		groupID := a.groups.Resolve(ctx, *name)
		if groupID == 0 {
			die("no such group")
		}
		printJSON(a.groups.Members(ctx, groupID))

	case "receipts":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		group := fs.String("group", "", "group name")
		fs.Parse(args)
		printJSON(a.receipts.ReceiptsInGroup(ctx, *group))

	case "upload":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		group := fs.String("group", "", "group name")
		path := fs.String("file", "", "receipt file")
		fs.Parse(args)
		groupID := a.groups.Resolve(ctx, *group)
		if groupID == 0 {
			die("no such group")
		}
		f, err := os.Open(*path)
		if err != nil {
			die("cannot open file: " + err.Error())
		}
		defer f.Close()
		if !a.receipts.Upload(ctx, groupID, filepath.Base(*path), f) {
			die("upload failed")
		}
		fmt.Println("receipt uploaded")

	case "rm-receipt":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		fs.Parse(args)
		if !a.receipts.Delete(ctx, *id) {
			die("deletion failed")
		}
		fmt.Println("receipt deleted")

	case "items":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		fs.Parse(args)
		printJSON(a.receipts.Items(ctx, *id))

	case "allocations":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		fs.Parse(args)
		printJSON(a.receipts.Allocations(ctx, *id))

	case "allocate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		user := fs.String("user", "", "username")
		item := fs.Int64("item", 0, "item id")
		unit := fs.Float64("unit", 0, "claimed units")
		fs.Parse(args)
		a.allocate(ctx, *id, *user, *item, *unit)

	case "receipt-add-user":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		user := fs.String("user", "", "username")
		fs.Parse(args)
		userID := a.auth.ResolveUserID(ctx, *user)
		if userID == 0 {
			die("no such user")
		}
		if !a.receipts.AddUser(ctx, *id, userID) {
			die("could not add user to receipt")
		}
		fmt.Println("user added")

	case "split":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.Int64("id", 0, "receipt id")
		paidBy := fs.String("paid-by", "", "username who paid the receipt")
		save := fs.Bool("save", false, "upload the computed costs")
		fs.Parse(args)
		a.split(ctx, *id, *paidBy, *save)

	case "costs":
		history := a.auth.SpendingHistory(ctx)
		printJSON(history)
		s := calculator.Summarize(history)
		if s.Receipts > 0 {
			fmt.Printf("%d receipts, %.2f total, %.2f mean, %s – %s\n",
				s.Receipts, s.Total, s.Mean,
				s.First.Format("2006-01-02"), s.Last.Format("2006-01-02"))
		}

	default:
		usage()
	}
}

// allocate updates one user's unit claim on one item, preserving all
// other allocations on the receipt.
func (a *app) allocate(ctx context.Context, receiptID int64, username string, itemID int64, unit float64) {
	userID := a.auth.ResolveUserID(ctx, username)
	if userID == 0 {
		die("no such user")
	}

	allocations := a.receipts.Allocations(ctx, receiptID)
	updated := false
	for i := range allocations {
		if allocations[i].UserID == userID && allocations[i].ItemID == itemID {
			allocations[i].Unit = unit
			updated = true
			break
		}
	}
	if !updated {
		allocations = append(allocations, models.UserItem{
			UserID: userID, ItemID: itemID, Unit: unit,
		})
	}

	if !a.receipts.SaveAllocations(ctx, allocations) {
		die("could not save allocations")
	}
	fmt.Println("allocation saved")
}

// split fetches a receipt's items and allocations, runs the cost
// engine, and prints each participant's share. With -paid-by it also
// prints who owes whom; with -save it uploads the computed costs.
func (a *app) split(ctx context.Context, receiptID int64, paidBy string, save bool) {
	items := a.receipts.Items(ctx, receiptID)
	if len(items) == 0 {
		die("receipt has no items")
	}
	allocations := a.receipts.Allocations(ctx, receiptID)

	costs, err := calculator.UserCosts(items, allocations)
	if err != nil {
		die("cannot split receipt: " + err.Error())
	}

	userIDs := make([]int64, 0, len(costs))
	for id := range costs {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

	for _, id := range userIDs {
		name := a.auth.ResolveUsername(ctx, id)
		if name == "" {
			name = fmt.Sprintf("user %d", id)
		}
		// Round at presentation time only.
		fmt.Printf("%-20s %8.2f\n", name, costs[id])
	}

	if paidBy != "" {
		payerID := a.auth.ResolveUserID(ctx, paidBy)
		if payerID == 0 {
			die("no such payer")
		}
		net := make(map[int64]float64, len(costs))
		for id, cost := range costs {
			net[id] -= cost
			net[payerID] += cost
		}
		for _, edge := range calculator.SettleDebts(net) {
			from := a.auth.ResolveUsername(ctx, edge.FromUserID)
			to := a.auth.ResolveUsername(ctx, edge.ToUserID)
			fmt.Printf("%s owes %s %.2f\n", from, to, edge.Amount)
		}
	}

	if save {
		rows := make([]models.UserCost, 0, len(userIDs))
		for _, id := range userIDs {
			rows = append(rows, models.UserCost{
				UserID: id, ReceiptID: receiptID, Cost: costs[id],
			})
		}
		if !a.receipts.SaveUserCosts(ctx, rows) {
			die("could not upload costs")
		}
		fmt.Println("costs uploaded")
	}
}
