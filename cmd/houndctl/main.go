// ABOUTME: Command line client for the hound control server
// ABOUTME: Lists the routing graph and connects or disconnects endpoints
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Resonate-Protocol/hound/internal/control"
	"github.com/Resonate-Protocol/hound/internal/discovery"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

var (
	serverAddr = flag.String("server", "localhost:8927", "Daemon control address (host:port)")
	timeout    = flag.Duration("timeout", 5*time.Second, "Request timeout")
	asJSON     = flag.Bool("json", false, "Print raw JSON")
)

const usage = `usage: houndctl [flags] <command> [args]

commands:
  info                          show daemon identity
  sources | sinks               list endpoint names
  connections                   list live connections
  devices                       list devices
  graph                         show the full graph
  connect <source> <sink>       link a source to a sink ("default" picks the first)
  disconnect <source> <sink>    remove every connection touching source or sink
  disconnect-pair <source> <sink>
                                remove only source -> sink connections
  discover                      find daemons with mDNS

flags:
`

func main() {
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "houndctl: %v\n", err)
		if errors.Is(err, hound.ErrNotFound) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	if cmd == "discover" {
		return discover()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, err := control.Dial(ctx, *serverAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	endpoints := func() (string, string, error) {
		if len(args) != 2 {
			return "", "", fmt.Errorf("%s needs <source> <sink>", cmd)
		}
		return args[0], args[1], nil
	}

	switch cmd {
	case "info":
		info, err := c.Info(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(info)
		}
		fmt.Printf("%s (%s %s by %s)\nid: %s\n", info.Name, info.ProductName, info.SoftwareVersion, info.Manufacturer, info.ServerID)

	case "sources", "sinks":
		list := c.Sources
		if cmd == "sinks" {
			list = c.Sinks
		}
		names, err := list(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(names)
		}
		for _, n := range names {
			fmt.Println(n)
		}

	case "connections":
		conns, err := c.Connections(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(conns)
		}
		printConnections(conns)

	case "devices":
		devices, err := c.Devices(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(devices)
		}
		t := newTable("ID", "NAME", "SOURCE", "SINK")
		for _, d := range devices {
			t.Row(d.ID, d.Name, d.Source, d.Sink)
		}
		fmt.Println(t)

	case "graph":
		g, err := c.Graph(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(g)
		}
		printGraph(g)

	case "connect":
		src, sink, err := endpoints()
		if err != nil {
			return err
		}
		conn, err := c.Connect(ctx, src, sink)
		if err != nil {
			return err
		}
		fmt.Printf("connected %s -> %s (%s)\n", conn.Source, conn.Sink, conn.ID)

	case "disconnect", "disconnect-pair":
		src, sink, err := endpoints()
		if err != nil {
			return err
		}
		disconnect := c.Disconnect
		if cmd == "disconnect-pair" {
			disconnect = c.DisconnectPair
		}
		n, err := disconnect(ctx, src, sink)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d connection(s)\n", n)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func discover() error {
	servers, err := discovery.Discover(*timeout, nil)
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(servers)
	}
	if len(servers) == 0 {
		fmt.Println("no daemons found")
		return nil
	}
	t := newTable("NAME", "ADDRESS", "VERSION")
	for _, s := range servers {
		t.Row(s.Name, s.Addr(), s.Version)
	}
	fmt.Println(t)
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...)
}

func printConnections(conns []hound.ConnectionInfo) {
	t := newTable("SOURCE", "SINK", "QUEUED FRAMES", "ID")
	for _, c := range conns {
		t.Row(c.Source, c.Sink, strconv.Itoa(c.BufferedFrames), c.ID.String())
	}
	fmt.Println(t)
}

func printGraph(g *hound.Graph) {
	endpoints := newTable("KIND", "NAME", "FORMAT", "CONNECTIONS")
	for _, s := range g.Sources {
		endpoints.Row("source", s.Name, s.Format.String(), strconv.Itoa(s.Connections))
	}
	for _, s := range g.Sinks {
		endpoints.Row("sink", s.Name, s.Format.String(), strconv.Itoa(s.Connections))
	}
	for _, c := range g.Contexts {
		endpoints.Row("context", c.Name, c.Kind, strconv.Itoa(c.Streams)+" streams")
	}
	fmt.Println(endpoints)
	printConnections(g.Connections)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
