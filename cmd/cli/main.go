package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hamed0406/sitemonitor/internal/domain"
)

const usage = `usage: cli <command> [args]

commands:
  add [-interval N] [url]   register a site (prompts when url is omitted)
  list                      list sites
  checks [-limit N] <id>    recent checks, newest first
  stats <id>                uptime and average response time
  report                    stats for every site
  check <id>                probe a site now
  rm <id>                   remove a site and its history

environment:
  API_BASE  server base URL (default http://localhost:8080)
  API_KEY   key sent as a Bearer token
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid usage")

func run(args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	c := newClient(os.Getenv("API_BASE"), os.Getenv("API_KEY"))
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		interval := fs.Int("interval", 0, "probe interval in seconds (0 = server default)")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		raw := fs.Arg(0)
		if raw == "" {
			fmt.Fprint(out, "Enter a site URL to monitor (e.g., https://example.com): ")
			line, _ := bufio.NewReader(in).ReadString('\n')
			raw = strings.TrimSpace(line)
		}
		res, err := c.addSite(raw, *interval)
		if err != nil {
			return err
		}
		if res.Created {
			fmt.Fprintf(out, "Added site %d: %s every %ds\n", res.Site.ID, res.Site.URL, res.Site.IntervalSeconds)
		} else {
			fmt.Fprintf(out, "Already monitored as site %d: %s\n", res.Site.ID, res.Site.URL)
		}
		return nil

	case "list":
		sites, err := c.sites()
		if err != nil {
			return err
		}
		if len(sites) == 0 {
			fmt.Fprintln(out, "No sites are monitored.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tURL\tINTERVAL\tACTIVE")
		for _, s := range sites {
			fmt.Fprintf(tw, "%d\t%s\t%ds\t%t\n", s.ID, s.URL, s.IntervalSeconds, s.IsActive)
		}
		return tw.Flush()

	case "checks":
		fs := flag.NewFlagSet("checks", flag.ContinueOnError)
		limit := fs.Int("limit", 10, "number of checks")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parseID(fs.Args())
		if err != nil {
			return err
		}
		checks, err := c.checks(id, *limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CHECKED\tUP\tCODE\tLATENCY\tREASON")
		for _, ch := range checks {
			fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n",
				ch.CheckedAt.Local().Format(time.DateTime), ch.IsAvailable, code(ch), latency(ch), ch.FailureReason)
		}
		return tw.Flush()

	case "stats":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		st, err := c.stats(id)
		if err != nil {
			return err
		}
		printStats(out, st)
		return nil

	case "report":
		rep, err := c.report()
		if err != nil {
			return err
		}
		for _, r := range rep {
			fmt.Fprintf(out, "%s\n", r.Site.URL)
			printStats(out, r.Stats)
		}
		return nil

	case "check":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		ch, err := c.checkNow(id)
		if err != nil {
			return err
		}
		state := "DOWN"
		if ch.IsAvailable {
			state = "UP"
		}
		fmt.Fprintf(out, "%s code=%s latency=%s %s\n", state, code(ch), latency(ch), ch.FailureReason)
		return nil

	case "rm":
		id, err := parseID(rest)
		if err != nil {
			return err
		}
		if err := c.removeSite(id); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed site %d\n", id)
		return nil

	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	}
	fmt.Fprint(out, usage)
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func parseID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected one site id", errUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad site id %q", errUsage, args[0])
	}
	return id, nil
}

func printStats(out io.Writer, st domain.Stats) {
	uptime := "n/a"
	if st.UptimePercent.Valid {
		uptime = fmt.Sprintf("%.2f%%", st.UptimePercent.Float64)
	}
	avg := "n/a"
	if st.AverageResponse.Valid {
		avg = fmt.Sprintf("%.0fms", st.AverageResponse.Float64*1000)
	}
	fmt.Fprintf(out, "  checks: %d  available: %d  uptime: %s  avg response: %s\n", st.Total, st.Available, uptime, avg)
}

func code(c domain.Check) string {
	if !c.StatusCode.Valid {
		return "-"
	}
	return strconv.FormatInt(c.StatusCode.Int64, 10)
}

func latency(c domain.Check) string {
	if !c.ResponseTime.Valid {
		return "-"
	}
	return fmt.Sprintf("%.0fms", c.ResponseTime.Float64*1000)
}
