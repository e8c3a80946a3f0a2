package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

var errUsage = errors.New("invalid usage")

type session struct {
	Token string `json:"token"`
	User  struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"user"`
}

type progressOut struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	Status         string `json:"status"`
	TotalCompleted int    `json:"totalCompleted"`
	Percent        int    `json:"percent"`
	Completed      []struct {
		BlockID string `json:"blockId"`
		Amount  int    `json:"amount"`
	} `json:"completed"`
}

type orderOut struct {
	ID            string `json:"id"`
	DisplayStatus string `json:"displayStatus"`
	StartDate     string `json:"startDate"`
	Deadline      string `json:"deadline"`
	TotalOrdered  int    `json:"totalOrdered"`
	CreatedByName string `json:"createdByName"`
	Notes         string `json:"notes"`
	Items         []struct {
		BlockID   string `json:"blockId"`
		BlockName string `json:"blockName"`
		Amount    int    `json:"amount"`
		Unit      string `json:"unit"`
	} `json:"items"`
	Progress []progressOut `json:"progress"`
}

type absenceOut struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

type userOut struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// Auth commands
func handleAuth(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: farmorders auth <login|logout|who|register|passwd>")
		return nil
	}
	c := newClient()
	switch args[0] {
	case "login":
		return loginUser(c, "/auth/login", args[1:])
	case "register":
		return loginUser(c, "/auth/register", args[1:])
	case "logout":
		return logoutUser(c)
	case "who":
		return whoAmI(c)
	case "passwd":
		return changePassword(c, args[1:])
	default:
		return fmt.Errorf("unknown auth command: %s", args[0])
	}
}

func loginUser(c *client, path string, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("username", "", "username")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fmt.Println("Error: username and password are required")
		fs.PrintDefaults()
		return errUsage
	}

	var s session
	if err := c.call(http.MethodPost, path, map[string]string{"username": *username, "password": *password}, &s); err != nil {
		return err
	}
	if err := saveToken(s.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("✓ Logged in as: %s (%s)\n", s.User.Username, s.User.Role)
	return nil
}

func logoutUser(c *client) error {
	if c.token != "" {
		// The local token is dropped even if the server is unreachable
		if err := c.call(http.MethodPost, "/auth/logout", nil, nil); err != nil {
			fmt.Fprintf(os.Stderr, "warning: server logout failed: %v\n", err)
		}
	}
	os.Remove(tokenFile())
	fmt.Println("✓ Logged out")
	return nil
}

func whoAmI(c *client) error {
	if c.token == "" {
		fmt.Println("Not logged in")
		return nil
	}
	var u userOut
	if err := c.call(http.MethodGet, "/auth/me", nil, &u); err != nil {
		return err
	}
	fmt.Printf("✓ Logged in as %s (%s, %s)\n", u.Username, u.Role, u.Email)
	return nil
}

func changePassword(c *client, args []string) error {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	oldPassword := fs.String("old", "", "current password")
	newPassword := fs.String("new", "", "new password")
	fs.Parse(args)
	if *oldPassword == "" || *newPassword == "" {
		fs.PrintDefaults()
		return errUsage
	}
	if err := c.call(http.MethodPost, "/auth/change-password", map[string]string{"oldPassword": *oldPassword, "newPassword": *newPassword}, nil); err != nil {
		return err
	}
	fmt.Println("✓ Password changed")
	return nil
}

// Order commands
func handleOrders(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: farmorders orders <list|show|create|accept|progress|submit|confirm|status|delete>")
		return nil
	}
	c := newClient()
	rest := args[1:]
	switch args[0] {
	case "list":
		return listOrders(c, rest)
	case "show":
		return withID(rest, "orders show <order-id>", func(id string) error { return showOrder(c, id) })
	case "create":
		return createOrder(c, rest)
	case "accept":
		return withID(rest, "orders accept <order-id>", func(id string) error {
			return c.call(http.MethodPost, "/orders/"+id+"/accept", nil, nil)
		})
	case "progress":
		if len(rest) != 3 {
			fmt.Println("Usage: farmorders orders progress <order-id> <block-id> <amount>")
			return errUsage
		}
		amount, err := strconv.Atoi(rest[2])
		if err != nil {
			return fmt.Errorf("amount must be a number: %w", err)
		}
		var p progressOut
		if err := c.call(http.MethodPut, "/orders/"+rest[0]+"/progress/"+url.PathEscape(rest[1]), map[string]int{"amount": amount}, &p); err != nil {
			return err
		}
		fmt.Printf("✓ %d%% done (%s)\n", p.Percent, p.Status)
		return nil
	case "submit":
		return withID(rest, "orders submit <order-id>", func(id string) error {
			return c.call(http.MethodPost, "/orders/"+id+"/submit", nil, nil)
		})
	case "confirm":
		if len(rest) != 2 {
			fmt.Println("Usage: farmorders orders confirm <order-id> <user-id>")
			return errUsage
		}
		return c.call(http.MethodPost, "/orders/"+rest[0]+"/confirm/"+rest[1], nil, nil)
	case "status":
		if len(rest) != 2 {
			fmt.Println("Usage: farmorders orders status <order-id> <open|in_progress|completed>")
			return errUsage
		}
		return c.call(http.MethodPatch, "/orders/"+rest[0]+"/status", map[string]string{"status": rest[1]}, nil)
	case "delete":
		return withID(rest, "orders delete <order-id>", func(id string) error {
			return c.call(http.MethodDelete, "/orders/"+id, nil, nil)
		})
	default:
		return fmt.Errorf("unknown orders command: %s", args[0])
	}
}

func withID(args []string, usage string, fn func(id string) error) error {
	if len(args) != 1 {
		fmt.Println("Usage: farmorders " + usage)
		return errUsage
	}
	if err := fn(args[0]); err != nil {
		return err
	}
	fmt.Println("✓ Done")
	return nil
}

func listOrders(c *client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "open, in_progress, completed or overdue")
	mine := fs.Bool("mine", false, "only orders I accepted")
	available := fs.Bool("available", false, "only orders I can still accept")
	filter := fs.String("filter", "", `expression, e.g. 'totalOrdered > 100 && "wheat" in blocks'`)
	fs.Parse(args)

	q := url.Values{}
	if *status != "" {
		q.Set("status", *status)
	}
	if *mine {
		q.Set("mine", "true")
	}
	if *available {
		q.Set("available", "true")
	}
	if *filter != "" {
		q.Set("filter", *filter)
	}
	path := "/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var orders []orderOut
	if err := c.call(http.MethodGet, path, nil, &orders); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tITEMS\tTOTAL\tDEADLINE\tASSIGNED")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%d\n", o.ID, o.DisplayStatus, len(o.Items), o.TotalOrdered, o.Deadline, len(o.Progress))
	}
	return w.Flush()
}

func showOrder(c *client, id string) error {
	var o orderOut
	if err := c.call(http.MethodGet, "/orders/"+id, nil, &o); err != nil {
		return err
	}
	fmt.Printf("Order %s (%s)\n", o.ID, o.DisplayStatus)
	fmt.Printf("  %s → %s, created by %s\n", o.StartDate, o.Deadline, o.CreatedByName)
	if o.Notes != "" {
		fmt.Printf("  %s\n", o.Notes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nBLOCK\tAMOUNT\tUNIT")
	for _, item := range o.Items {
		fmt.Fprintf(w, "%s\t%d\t%s\n", item.BlockName, item.Amount, item.Unit)
	}
	fmt.Fprintln(w, "\nMEMBER\tSTATUS\tDONE\tPERCENT")
	for _, p := range o.Progress {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d%%\n", p.Username, p.Status, p.TotalCompleted, o.TotalOrdered, p.Percent)
	}
	return w.Flush()
}

// itemFlags collects repeated -item block:amount[:unit] values
type itemFlags []map[string]any

func (f *itemFlags) String() string { return fmt.Sprint(len(*f)) }

func (f *itemFlags) Set(v string) error {
	parts := strings.Split(v, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("item must be block:amount[:unit], got %q", v)
	}
	amount, err := strconv.Atoi(parts[1])
	if err != nil {
		return fmt.Errorf("invalid amount in %q", v)
	}
	unit := "dk"
	if len(parts) == 3 {
		unit = parts[2]
	}
	*f = append(*f, map[string]any{"blockId": parts[0], "amount": amount, "unit": unit})
	return nil
}

func createOrder(c *client, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	var items itemFlags
	fs.Var(&items, "item", "block:amount[:unit], repeatable (unit dk or kisten)")
	start := fs.String("start", "", "start date YYYY-MM-DD")
	deadline := fs.String("deadline", "", "deadline YYYY-MM-DD")
	autoAssign := fs.Bool("auto-assign", false, "assign every farmer")
	notes := fs.String("notes", "", "free text")
	fs.Parse(args)

	if len(items) == 0 || *start == "" || *deadline == "" {
		fmt.Println("Error: at least one -item, -start and -deadline are required")
		fs.PrintDefaults()
		return errUsage
	}

	var o orderOut
	err := c.call(http.MethodPost, "/orders", map[string]any{
		"items":      items,
		"startDate":  *start,
		"deadline":   *deadline,
		"autoAssign": *autoAssign,
		"notes":      *notes,
	}, &o)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Order created: %s\n", o.ID)
	return nil
}

// Absence commands
func handleAbsences(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: farmorders absences <list|request|approve|reject>")
		return nil
	}
	c := newClient()
	rest := args[1:]
	switch args[0] {
	case "list":
		var absences []absenceOut
		if err := c.call(http.MethodGet, "/absences", nil, &absences); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMEMBER\tFROM\tTO\tSTATUS\tREASON")
		for _, a := range absences {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.Username, a.StartDate, a.EndDate, a.Status, a.Reason)
		}
		return w.Flush()
	case "request":
		fs := flag.NewFlagSet("request", flag.ExitOnError)
		start := fs.String("start", "", "first day YYYY-MM-DD")
		end := fs.String("end", "", "last day YYYY-MM-DD")
		reason := fs.String("reason", "", "optional reason")
		fs.Parse(rest)
		if *start == "" || *end == "" {
			fs.PrintDefaults()
			return errUsage
		}
		var a absenceOut
		if err := c.call(http.MethodPost, "/absences", map[string]string{"startDate": *start, "endDate": *end, "reason": *reason}, &a); err != nil {
			return err
		}
		fmt.Printf("✓ Absence requested: %s\n", a.ID)
		return nil
	case "approve", "reject":
		action := args[0]
		return withID(rest, "absences "+action+" <absence-id>", func(id string) error {
			return c.call(http.MethodPost, "/absences/"+id+"/"+action, nil, nil)
		})
	default:
		return fmt.Errorf("unknown absences command: %s", args[0])
	}
}

// User commands
func handleUsers(args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: farmorders users <list|create|delete|profile>")
		return nil
	}
	c := newClient()
	rest := args[1:]
	switch args[0] {
	case "list":
		var users []userOut
		if err := c.call(http.MethodGet, "/users", nil, &users); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tLOGIN\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Username, u.Role, u.Email, u.CreatedAt)
		}
		return w.Flush()
	case "create":
		fs := flag.NewFlagSet("create", flag.ExitOnError)
		username := fs.String("username", "", "username")
		password := fs.String("password", "", "initial password")
		role := fs.String("role", "viewer", "admin, farmer or viewer")
		fs.Parse(rest)
		if *username == "" || *password == "" {
			fs.PrintDefaults()
			return errUsage
		}
		var u userOut
		if err := c.call(http.MethodPost, "/users", map[string]string{"username": *username, "password": *password, "role": *role}, &u); err != nil {
			return err
		}
		fmt.Printf("✓ User created: %s (%s), login %s\n", u.Username, u.Role, u.Email)
		return nil
	case "delete":
		return withID(rest, "users delete <user-id>", func(id string) error {
			return c.call(http.MethodDelete, "/users/"+id, nil, nil)
		})
	case "profile":
		return withID(rest, "users profile <user-id>", func(id string) error {
			return showProfile(c, id)
		})
	default:
		return fmt.Errorf("unknown users command: %s", args[0])
	}
}

type profileOut struct {
	Username  string       `json:"username"`
	Active    []orderOut   `json:"active"`
	Submitted []orderOut   `json:"submitted"`
	Confirmed []orderOut   `json:"confirmed"`
	Absences  []absenceOut `json:"absences"`
}

func showProfile(c *client, id string) error {
	var p profileOut
	if err := c.call(http.MethodGet, "/users/"+id+"/profile", nil, &p); err != nil {
		return err
	}
	fmt.Printf("Profile of %s\n", p.Username)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tORDER\tDEADLINE\tORDERED")
	groups := []struct {
		name   string
		orders []orderOut
	}{{"active", p.Active}, {"submitted", p.Submitted}, {"confirmed", p.Confirmed}}
	for _, g := range groups {
		for _, o := range g.orders {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", g.name, o.ID, o.Deadline, o.TotalOrdered)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, a := range p.Absences {
		fmt.Printf("absence %s..%s %s %s\n", a.StartDate, a.EndDate, a.Status, a.Reason)
	}
	return nil
}

func showCatalog(c *client) error {
	var body struct {
		Categories []struct {
			Name   string `json:"name"`
			Blocks []struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"blocks"`
		} `json:"categories"`
	}
	if err := c.call(http.MethodGet, "/catalog", nil, &body); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tID\tNAME")
	for _, cat := range body.Categories {
		for _, b := range cat.Blocks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", cat.Name, b.ID, b.Name)
		}
	}
	return w.Flush()
}
