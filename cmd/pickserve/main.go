/*
Package main implements the filtered selection server and CLI [DBG] application.

Note: This is a BETA release. APIs and functionality may rapidly change.

PickServe narrows a large candidate list down as a pattern is typed. Patterns
support prefix, substring, wildcard (* and ?), CamelCase abbreviations and the
> and < anchors. Recently selected items are remembered and listed first,
followed by a separator and the remaining matches.

# Usage

Start the server with default settings:

	pickserve

Use a custom data directory and enable debug mode:

	pickserve -data /path/to/chunks -d

Run in CLI mode for interactive testing:

	pickserve -c -limit 10

Turn a plain word list into chunk files:

	pickserve -build words.txt -data ./data

The data directory should contain chunked binary files named dict_0001.bin,
dict_0002.bin, etc. Plain text lists ("word [rank]" per line) can be added
with -list.

# Configuration

Runtime configuration is read from a TOML file, created with defaults when it
does not exist:

	[server]
	max_limit = 64
	max_query = 256
	check_duplicates = true

	[engine]
	history_size = 60
	debounce_ms = 0
	case_sensitive = false
	camel_case = true
	wildcard = true
	substring = true

	[dict]
	max_words = 50000
	chunk_size = 10000

	[cli]
	default_limit = 24

# Server Mode

The default mode reads msgpack requests from stdin and writes responses to
stdout. See package server for the message formats. Selection history is
saved when the input stream ends or the process is interrupted.

# Command Line Flags

	-data string
	    Directory containing binary chunk files (default "data/")
	-list string
	    Plain text word list to load in addition to the chunks
	-d  Enable debug mode with detailed logging
	-c  Run in CLI mode instead of server mode
	-limit int
	    Number of matches to show in CLI mode (default from config)
	-words int
	    Maximum words to load (0 for all)
	-config string
	    Path to a config file
	-history string
	    Path of the history file
	-no-history
	    Do not load or save selection history
	-build string
	    Write the given word list as chunk files into -data and exit
	-reset-config
	    Overwrite the config file with defaults and exit
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/bastiangx/pickserve/internal/cli"
	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/bastiangx/pickserve/pkg/dictionary"
	"github.com/bastiangx/pickserve/pkg/filter"
	"github.com/bastiangx/pickserve/pkg/history"
	"github.com/bastiangx/pickserve/pkg/server"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

const (
	Version = "0.1.0-beta"
	AppName = "pickserve"
	gh      = "https://github.com/bastiangx/pickserve"
)

var (
	exitMu    sync.Mutex
	exitHooks []func()
)

// onExit registers fn to run when the process is interrupted.
func onExit(fn func()) {
	exitMu.Lock()
	defer exitMu.Unlock()
	exitHooks = append(exitHooks, fn)
}

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		exitMu.Lock()
		for _, fn := range exitHooks {
			fn()
		}
		exitMu.Unlock()
		os.Exit(0)
	}()
}

// main calls other packages to initialize the server or CLI inputs.
// main() does not implement logic for them and only manages the flow.
func main() {
	sigHandler()
	log.SetOutput(os.Stderr)

	showVersion := flag.Bool("version", false, "Show current version")
	binaryDir := flag.String("data", "data/", "Directory containing the binary files")
	wordList := flag.String("list", "", "Plain text word list to load in addition to the chunks")
	debugMode := flag.Bool("d", false, "Toggle debug mode")
	cliMode := flag.Bool("c", false, "Run CLI -- useful for testing and debugging")
	limit := flag.Int("limit", 0, "Number of matches to show in CLI mode (default from config)")
	wordLimit := flag.Int("words", -1, "Maximum number of words to load (use 0 for all words, default from config)")
	configFile := flag.String("config", "", "Path to a custom config file")
	historyFile := flag.String("history", "", "Path of the selection history file")
	noHistory := flag.Bool("no-history", false, "Do not load or save selection history")
	buildFrom := flag.String("build", "", "Write the given word list as chunk files into -data and exit")
	resetConfig := flag.Bool("reset-config", false, "Overwrite the config file with defaults and exit")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *debugMode {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	if *resetConfig {
		path, err := config.RebuildConfigFile(*configFile)
		if err != nil {
			log.Fatalf("Failed to rebuild config: %v", err)
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	appConfig, configPath, err := config.LoadConfigWithPriority(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Debugf("Using config: %s", config.GetActiveConfigPath(configPath))

	pathResolver, err := utils.NewPathResolver()
	if err != nil {
		log.Print("Either env is not set or system is not supported")
		log.Fatalf("Failed to initialize path resolver: %v", err)
	}

	if *buildFrom != "" {
		buildChunks(*buildFrom, pathResolver.ResolveRelativePath(*binaryDir), appConfig.Dict.ChunkSize)
		return
	}

	maxWords := appConfig.Dict.MaxWords
	if *wordLimit >= 0 {
		maxWords = *wordLimit
	}
	loader := loadDictionary(pathResolver, *binaryDir, *wordList, maxWords)

	historyPath := ""
	if !*noHistory {
		historyPath = *historyFile
		if historyPath == "" {
			if historyPath, err = pathResolver.GetHistoryPath(); err != nil {
				log.Warnf("Failed to resolve history path, history will not persist: %v", err)
			}
		}
	}

	// CLI would be mainly used for testing and dbg purposes.
	if *cliMode {
		log.SetReportTimestamp(false)
		if *limit < 1 {
			*limit = appConfig.CLI.DefaultLimit
		}
		runCLI(loader, appConfig, historyPath, *limit)
		return
	}

	log.Debug("spawning IPC")
	srv := server.NewServer(loader, appConfig, historyPath)
	if historyPath != "" {
		onExit(func() {
			if err := srv.Session().History().SaveFile(historyPath); err != nil {
				log.Errorf("Failed to save history: %v", err)
			}
		})
	}

	showStartupInfo(loader, historyPath)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

// loadDictionary fills a loader from the chunk dir and the optional word list.
func loadDictionary(pr *utils.PathResolver, dataDir, wordList string, maxWords int) *dictionary.Loader {
	resolvedDataDir, err := pr.GetDataDir(dataDir)
	if err != nil {
		log.Fatalf("Failed to resolve data dir: %v", err)
	}
	log.Debugf("Using data dir at: %s", resolvedDataDir)
	log.Debugf("Init loader: maxWords=[%d]", maxWords)

	loader := dictionary.NewLoader(resolvedDataDir, maxWords)
	if err := loader.LoadDir(context.Background()); err != nil {
		if wordList == "" {
			log.Fatalf("Failed to load dictionary: %v", err)
		}
		log.Warnf("No chunks loaded: %v", err)
	}
	if wordList != "" {
		if err := loader.LoadFile(wordList); err != nil {
			log.Fatalf("Failed to load word list: %v", err)
		}
	}
	stats := loader.Stats()
	log.Debug("Dictionary ready", "words", stats.Words, "chunks", stats.LoadedChunks, "available", stats.AvailableChunks)
	return loader
}

func buildChunks(listPath, dataDir string, chunkSize int) {
	file, err := os.Open(listPath)
	if err != nil {
		log.Fatalf("Failed to open word list: %v", err)
	}
	defer file.Close()

	entries, err := dictionary.ReadText(file)
	if err != nil {
		log.Fatalf("Failed to read word list: %v", err)
	}
	paths, err := dictionary.BuildChunks(dataDir, entries, chunkSize)
	if err != nil {
		log.Fatalf("Failed to write chunks: %v", err)
	}
	log.Printf("Wrote %d words into %d chunks in %s", len(entries), len(paths), dataDir)
}

func runCLI(loader *dictionary.Loader, cfg *config.Config, historyPath string, limit int) {
	hist := history.New[dictionary.Entry](cfg.Engine.HistorySize)
	if historyPath != "" {
		if err := hist.LoadFile(historyPath); err != nil {
			log.Warnf("Failed to load history: %v", err)
		}
	}
	save := func() {
		if historyPath == "" {
			return
		}
		if err := hist.SaveFile(historyPath); err != nil {
			log.Errorf("Failed to save history: %v", err)
		}
	}
	onExit(save)

	session := filter.NewSession(dictionary.Name,
		filter.WithHistory(hist),
		filter.WithProgress[dictionary.Entry](filter.NewLogProgress(logger.New("scan"))),
	)
	searcher := filter.NewSearcher(session, filter.SearcherConfig[dictionary.Entry]{
		Source:     loader,
		Compare:    dictionary.ByRank,
		Options:    cfg.PatternOptions(),
		Duplicates: cfg.Server.CheckDuplicates,
	})
	defer searcher.Close()
	defer save()

	log.Debug("Input info:", "limit", limit, "history", historyPath)
	if err := cli.NewInputHandler(searcher, limit).Start(); err != nil {
		log.Errorf("CLI error: %v", err)
	}
}

func printVersion() {
	banner := logger.NewWithConfig("", log.InfoLevel, false, false, log.TextFormatter)

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	banner.SetStyles(styles)

	banner.Print("")
	banner.Print("[ PickServe ] Narrows long lists down as you type!")
	banner.Print("", "version", Version)
	banner.Print("")
	banner.Print("use -h or --help to see available options")
	banner.Print("Github Repo", "gh", gh)
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(loader *dictionary.Loader, historyPath string) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)

	println("===========")
	println(" PickServe ")
	println("===========")
	log.Infof("Version: %s", Version)
	log.Infof("Process ID: [ %d ]", os.Getpid())
	log.Infof("words: %d", loader.Len())
	if historyPath != "" {
		log.Infof("history: ( %s )", historyPath)
	}
	log.Info("status: ready")
	println("===========")
	println("Press Ctrl+C to exit")

	log.SetLevel(currentLevel)
}
