package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	app "github.com/rocketscienceinc/tictactoe-online/internal"
	"github.com/rocketscienceinc/tictactoe-online/internal/config"
)

// main - is the entry point of the terminal client.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "config.yml", "path to the config file")
	name := flag.String("name", "", "your nickname")
	mode := flag.String("mode", "", "local, ai or online")
	transport := flag.String("transport", "", "relay or poll")
	join := flag.String("join", "", "join link of a game to join")
	flag.Parse()

	// .env holds the API key; it is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(fmt.Errorf("failed to load .env: %w", err))
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	override(&conf.Client.Name, *name)
	override(&conf.Client.Mode, *mode)
	override(&conf.Client.Transport, *transport)
	override(&conf.Client.Join, *join)

	logger := initLogger(conf)

	if err = app.RunClient(logger, conf, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func override(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// initialize logger. Output goes to stderr so it does not mix with the board.
func initLogger(conf *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if conf.LogLevel == "debug" {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
