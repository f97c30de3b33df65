// Command lvcoredemo is a small demonstration binary that wires LogData
// and FilteredLogData end to end: attach a file, run a search, apply
// marks, and print the resulting filtered view. It is not a UI — it
// exists only so the core's public surface is exercised by a main the
// way every teacher subcommand exercises its own package.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mimecast/logdcore/internal/config"
	"github.com/mimecast/logdcore/internal/filteredlog"
	"github.com/mimecast/logdcore/internal/logdata"
	"github.com/mimecast/logdcore/internal/logging"
	"github.com/mimecast/logdcore/internal/pattern"
	"github.com/mimecast/logdcore/internal/searchcache"
)

func main() {
	var (
		filePath      string
		patternStr    string
		boolean       bool
		caseSensitive bool
		plainText     bool
		inverse       bool
		marksStr      string
		visibilityStr string
		configFile    string
		logLevel      string
	)

	flag.StringVar(&filePath, "file", "", "Log file to attach")
	flag.StringVar(&patternStr, "pattern", "", "Search pattern")
	flag.BoolVar(&boolean, "boolean", false, "Treat pattern as a boolean expression over quoted atoms")
	flag.BoolVar(&caseSensitive, "caseSensitive", false, "Case-sensitive matching")
	flag.BoolVar(&plainText, "plainText", false, "Treat pattern as a literal string")
	flag.BoolVar(&inverse, "inverse", false, "Invert the match result")
	flag.StringVar(&marksStr, "marks", "", "Comma-separated line numbers to mark")
	flag.StringVar(&visibilityStr, "visibility", "matches", "Visibility mode: matches|marks|both")
	flag.StringVar(&configFile, "cfg", "", "Config file path")
	flag.StringVar(&logLevel, "logLevel", "info", "Log level")
	flag.Parse()

	if filePath == "" {
		fmt.Fprintln(os.Stderr, "lvcoredemo: -file is required")
		os.Exit(1)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lvcoredemo: loading config:", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	var log *logging.Logger
	if cfg.LogDir != "" {
		log = logging.NewToFile(logging.ParseLevel(cfg.LogLevel), cfg.LogDir+"/lvcoredemo.log")
	} else {
		log = logging.New(logging.ParseLevel(cfg.LogLevel))
	}
	defer log.Close()

	ld := logdata.New(cfg, log)
	loaded := make(chan logdata.Status, 1)
	ld.OnLoadingProgressed(func(pct int) { log.Debug("loading progress: ", pct, "%") })
	ld.OnLoadingFinished(func(status logdata.Status) { loaded <- status })
	ld.Attach(filePath)

	select {
	case status := <-loaded:
		log.Info("loading finished with status ", status)
	case <-time.After(2 * time.Minute):
		fmt.Fprintln(os.Stderr, "lvcoredemo: timed out waiting for indexing")
		os.Exit(1)
	}

	fmt.Printf("attached %s: %d lines, %d bytes, encoding %s\n",
		filePath, ld.NbLine(), ld.GetFileSize(), ld.GetDetectedEncoding())

	cache, err := searchcache.New(cfg.SearchCacheMaxEntries, cfg.SearchCacheMaxMatchingLines)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lvcoredemo: creating search cache:", err)
		os.Exit(1)
	}
	filtered := filteredlog.New(ld, cfg, log, cache)

	for _, line := range parseMarks(marksStr) {
		filtered.AddMark(line, 0)
	}
	filtered.SetVisibility(parseVisibility(visibilityStr))

	if patternStr != "" {
		flags := pattern.Flags{
			CaseSensitive: caseSensitive,
			Inverse:       inverse,
			Boolean:       boolean,
			PlainText:     plainText,
		}
		finished := make(chan struct{}, 1)
		filtered.OnSearchProgressed(func(nbMatches, pct int) {
			log.Debug("search progress: ", pct, "%, ", nbMatches, " matches")
		})
		filtered.OnSearchFinished(func() { finished <- struct{}{} })

		if err := filtered.RunSearch(patternStr, flags, 0, ld.NbLine()); err != nil {
			fmt.Fprintln(os.Stderr, "lvcoredemo: invalid pattern:", err)
			os.Exit(1)
		}
		<-finished
	}

	fmt.Printf("filtered view: %d lines\n", filtered.NbLine())
	for i := 0; i < filtered.NbLine(); i++ {
		line, _ := filtered.GetMatchingLineNumber(i)
		tag := "match"
		if filtered.FilteredLineTypeByIndex(i) == filteredlog.Mark {
			tag = "mark"
		}
		fmt.Printf("%8d [%s] %s\n", line, tag, filtered.LineString(i))
	}
}

func parseMarks(s string) []uint64 {
	if s == "" {
		return nil
	}
	var out []uint64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

func parseVisibility(s string) filteredlog.Visibility {
	switch strings.ToLower(s) {
	case "marks":
		return filteredlog.MarksOnly
	case "both":
		return filteredlog.MarksAndMatches
	default:
		return filteredlog.MatchesOnly
	}
}
