// Command hearme shares one application's audio over a direct, encrypted
// P2P connection, or listens to a share given its ticket.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hearme/internal/session"
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	var app session.AppState
	app.OnShareEnded = func(id string) { fmt.Fprintf(os.Stderr, "share-ended: %s\n", id) }
	app.OnListenEnded = func(id string) { fmt.Fprintf(os.Stderr, "listen-ended: %s\n", id) }

	switch flag.Arg(0) {
	case "sources":
		runSources()
	case "share":
		runShare(&app, flag.Args()[1:])
	case "listen":
		runListen(&app, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: hearme sources | hearme share <source-id> | hearme listen <ticket>")
}

func runSources() {
	sources, err := session.ListAudioSources()
	if err != nil {
		log.Fatalf("list sources: %v", err)
	}
	for _, s := range sources {
		fmt.Printf("%s\t%s\n", s.ID, s.Name)
	}
}

func runShare(app *session.AppState, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: hearme share <source-id>")
		os.Exit(2)
	}

	id, ticket, err := app.StartSharing(args[0])
	if err != nil {
		log.Fatalf("start sharing: %v", err)
	}
	log.Printf("sharing started (session %s)", id)
	fmt.Println(ticket)

	waitForShutdown(func() {
		app.StopSharing()
	})
}

func runListen(app *session.AppState, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: hearme listen <ticket>")
		os.Exit(2)
	}

	id, err := app.StartListening(args[0])
	if err != nil {
		log.Fatalf("start listening: %v", err)
	}
	log.Printf("listening started (session %s)", id)

	waitForShutdown(func() {
		app.StopListening()
	})
}

// waitForShutdown blocks until SIGINT/SIGTERM or stdin EOF, then runs
// teardown and exits.
func waitForShutdown(teardown func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	stdinClosed := make(chan struct{})
	go func() {
		defer close(stdinClosed)
		r := bufio.NewReader(os.Stdin)
		for {
			if _, err := r.ReadByte(); err != nil {
				return
			}
		}
	}()

	select {
	case sig := <-sigCh:
		log.Printf("received %s, shutting down...", sig)
	case <-stdinClosed:
		log.Printf("stdin closed, shutting down...")
	}

	teardown()
	os.Exit(0)
}
