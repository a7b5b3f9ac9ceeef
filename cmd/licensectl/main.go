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

	"licensing/internal/dto"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "create":
		err = runCreate(args)
	case "list":
		err = runList(args)
	case "lock":
		err = runLock(args)
	case "delete":
		err = runDelete(args)
	case "audit":
		err = runAudit(args)
	default:
		usage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  create     Generate a batch of activation keys")
	fmt.Fprintln(os.Stderr, "  list       List keys with optional filters")
	fmt.Fprintln(os.Stderr, "  lock       Toggle the lock on a key")
	fmt.Fprintln(os.Stderr, "  delete     Delete a key")
	fmt.Fprintln(os.Stderr, "  audit      Show the audit trail for a key")
	os.Exit(2)
}

type clientOpts struct {
	baseURL string
	user    string
	pass    string
}

func addClientFlags(fs *flag.FlagSet) *clientOpts {
	opts := &clientOpts{}
	fs.StringVar(&opts.baseURL, "url", envOr("LICENSED_URL", "http://localhost:8083"), "service base URL")
	fs.StringVar(&opts.user, "user", envOr("ADMIN_USER", "admin"), "admin username")
	fs.StringVar(&opts.pass, "pass", os.Getenv("ADMIN_PASS"), "admin password")
	return opts
}

func runCreate(args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	opts := addClientFlags(fs)
	count := fs.Int("count", 1, "number of keys to generate")
	expires := fs.String("expires", "", "expiry date (RFC3339 or YYYY-MM-DD, empty = permanent)")
	notes := fs.String("notes", "", "admin notes for the batch")
	trial := fs.Bool("trial", false, "mark keys as trial keys")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := dto.CreateKeysRequest{Count: *count, Notes: *notes, IsTrialKey: *trial}
	if *expires != "" {
		t, err := parseExpiry(*expires)
		if err != nil {
			return err
		}
		req.ExpiresAt = &t
	}

	var res dto.CreateKeysResponse
	if err := opts.doJSON(http.MethodPost, "/admin/keys", req, &res); err != nil {
		return err
	}
	fmt.Printf("created %d keys\n", res.Created)
	for _, k := range res.Keys {
		fmt.Println(k.KeyValue)
	}
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	opts := addClientFlags(fs)
	search := fs.String("search", "", "substring of key value or fingerprint")
	status := fs.String("status", "", "unused|used|locked|forced-locked|expired")
	sortBy := fs.String("sort", "", "sort column")
	order := fs.String("order", "", "asc or desc")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := url.Values{}
	setIfNotEmpty(params, "search", *search)
	setIfNotEmpty(params, "status", *status)
	setIfNotEmpty(params, "sort", *sortBy)
	setIfNotEmpty(params, "order", *order)

	path := "/admin/keys"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var res dto.ListKeysResponse
	if err := opts.doJSON(http.MethodGet, path, nil, &res); err != nil {
		return err
	}
	for _, k := range res.Keys {
		fp := "-"
		if k.BoundFingerprint != nil {
			fp = *k.BoundFingerprint
		}
		fmt.Printf("%s  %-13s  activations=%d  switches=%d  fp=%s\n",
			k.KeyValue, k.State, k.ActivationCount, k.DeviceChangeCount, fp)
	}
	fmt.Printf("%d keys\n", res.Total)
	return nil
}

func runLock(args []string) error {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	opts := addClientFlags(fs)
	id := fs.String("id", "", "key id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing -id")
	}
	return opts.doJSON(http.MethodPost, "/admin/keys/"+*id+"/toggle-lock", nil, nil)
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	opts := addClientFlags(fs)
	id := fs.String("id", "", "key id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing -id")
	}
	return opts.doJSON(http.MethodDelete, "/admin/keys/"+*id, nil, nil)
}

func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	opts := addClientFlags(fs)
	id := fs.String("id", "", "key id")
	limit := fs.Int("limit", 50, "max entries")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("missing -id")
	}

	var res dto.AuditLogResponse
	path := fmt.Sprintf("/admin/keys/%s/audit?limit=%d", *id, *limit)
	if err := opts.doJSON(http.MethodGet, path, nil, &res); err != nil {
		return err
	}
	for _, e := range res.Entries {
		fmt.Printf("%s  %-28s  ip=%s  fp=%s  %s\n",
			e.CreatedAt.Format(time.RFC3339), e.Action, e.IPAddress, e.Fingerprint, e.Details)
	}
	return nil
}

func (c *clientOpts) doJSON(method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.user, c.pass)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseExpiry(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		// End of day, so a date given today still creates usable keys.
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Time{}, fmt.Errorf("cannot parse expiry %q", raw)
}

func setIfNotEmpty(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
