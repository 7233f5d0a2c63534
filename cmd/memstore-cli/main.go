// memstore-cli is an interactive REPL over a memstore data directory.
//
// Usage:
//
//	memstore-cli [--data-dir DIR] [--config FILE]
//
// Commands (in REPL):
//
//	add <category> <type> <content...>       Add a memory to main
//	get <memory-id>                          Get a memory by id
//	update <memory-id> <content...>          Update a memory's content
//	delete <memory-id>                       Soft-delete a memory
//	list [category] [type]                   List memories
//	due                                      List memories due today
//	search <mode> <query...>                 semantic|text|hybrid search
//	fork <fork-id>                           Create a fork of main
//	forks                                    List store ids
//	verify [store-id]                        Check Merkle integrity
//	rebuild [store-id]                       Force-rebuild indexes
//	compact [store-id]                       Force WAL rotation
//	help                                     Show this help
//	exit / quit / q                          Exit
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/memstore/pkg/memstore"
	"github.com/calvinalkan/memstore/pkg/record"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("memstore-cli", flag.ContinueOnError)

	dataDir := fs.String("data-dir", "./data", "store data directory")
	configPath := fs.StringP("config", "c", "", "path to a memstore.json config file")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: memstore-cli [--data-dir DIR] [--config FILE]")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := memstore.LoadConfig(*configPath, memstore.Config{DataDir: *dataDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := func(event string, fields map[string]any) {
		fmt.Fprintf(os.Stderr, "[memstore] %s %v\n", event, fields)
	}

	store, err := memstore.Open(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	repl := &REPL{store: store}

	return repl.Run()
}

// REPL is the interactive command loop, in the shape of the pack's own
// liner-based CLIs: a thin dispatcher over pkg/memstore's public API.
type REPL struct {
	store *memstore.Store
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".memstore_cli_history")
}

func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("memstore-cli - type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("memstore> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil

		case "help", "?":
			r.printHelp()

		case "add":
			r.cmdAdd(args)

		case "get":
			r.cmdGet(args)

		case "update":
			r.cmdUpdate(args)

		case "delete", "del":
			r.cmdDelete(args)

		case "list", "ls":
			r.cmdList(args)

		case "due":
			r.cmdDue(args)

		case "search":
			r.cmdSearch(args)

		case "fork":
			r.cmdFork(args)

		case "forks":
			r.cmdForks()

		case "verify":
			r.cmdVerify(args)

		case "rebuild":
			r.cmdRebuild(args)

		case "compact":
			r.cmdCompact(args)

		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (r *REPL) completer(line string) []string {
	commands := []string{
		"add", "get", "update", "delete", "del",
		"list", "ls", "due", "search", "fork", "forks",
		"verify", "rebuild", "compact",
		"help", "exit", "quit", "q",
	}

	lower := strings.ToLower(line)

	var completions []string

	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			completions = append(completions, c)
		}
	}

	return completions
}

func (r *REPL) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  add <category> <type> <content...>   Add a memory to main")
	fmt.Println("  get <memory-id>                      Get a memory by id")
	fmt.Println("  update <memory-id> <content...>      Update a memory's content")
	fmt.Println("  delete <memory-id>                   Soft-delete a memory")
	fmt.Println("  list [category] [type]                List memories")
	fmt.Println("  due                                   List memories due today")
	fmt.Println("  search <mode> <query...>              semantic|text|hybrid search")
	fmt.Println("  fork <fork-id>                        Create a fork of main")
	fmt.Println("  forks                                 List store ids")
	fmt.Println("  verify [store-id]                     Check Merkle integrity")
	fmt.Println("  rebuild [store-id]                    Force-rebuild indexes")
	fmt.Println("  compact [store-id]                    Force WAL rotation")
	fmt.Println("  help                                  Show this help")
	fmt.Println("  exit / quit / q                       Exit")
}

func storeIDOrMain(args []string, pos int) string {
	if len(args) > pos {
		return args[pos]
	}

	return memstore.MainStoreID
}

func (r *REPL) cmdAdd(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: add <category> <type> <content...>")

		return
	}

	m, err := r.store.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{
		Category:   args[0],
		Type:       args[1],
		Content:    strings.Join(args[2:], " "),
		Importance: 5,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: added %s (version=%d)\n", m.MemoryID, m.Version)
}

func (r *REPL) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <memory-id>")

		return
	}

	m, err := r.store.GetMemory(memstore.MainStoreID, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	printMemory(m)
}

func (r *REPL) cmdUpdate(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: update <memory-id> <content...>")

		return
	}

	prev, err := r.store.GetMemory(memstore.MainStoreID, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	m, err := r.store.UpdateMemory(memstore.MainStoreID, args[0], memstore.UpdateMemoryInput{
		Category:     prev.Category,
		Type:         prev.Type,
		Content:      strings.Join(args[1:], " "),
		Tags:         prev.Tags,
		Importance:   prev.Importance,
		CadenceType:  prev.CadenceType,
		CadenceValue: prev.CadenceValue,
		Context:      prev.Context,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: updated %s (version=%d)\n", m.MemoryID, m.Version)
}

func (r *REPL) cmdDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: delete <memory-id>")

		return
	}

	m, err := r.store.DeleteMemory(memstore.MainStoreID, args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: deleted %s (version=%d)\n", m.MemoryID, m.Version)
}

func (r *REPL) cmdList(args []string) {
	opts := memstore.ListMemoriesOptions{Limit: 50}
	if len(args) > 0 {
		opts.Category = args[0]
	}

	if len(args) > 1 {
		opts.Type = args[1]
	}

	memories, err := r.store.ListMemories(memstore.MainStoreID, opts)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if len(memories) == 0 {
		fmt.Println("(empty)")

		return
	}

	for _, m := range memories {
		fmt.Printf("%s  [%s/%s]  %s\n", m.MemoryID, m.Category, m.Type, truncate(m.Content, 60))
	}
}

func (r *REPL) cmdDue(args []string) {
	due, err := r.store.GetDueMemories(memstore.MainStoreID, time.Now())
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if len(due) == 0 {
		fmt.Println("(none due)")

		return
	}

	for _, m := range due {
		fmt.Printf("%s  [%s]  %s\n", m.MemoryID, m.CadenceType, truncate(m.Content, 60))
	}
}

func (r *REPL) cmdSearch(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: search <semantic|text|hybrid> <query...>")

		return
	}

	results, err := r.store.Search(memstore.MainStoreID, memstore.SearchOptions{
		Mode:  memstore.SearchMode(args[0]),
		Query: strings.Join(args[1:], " "),
		Limit: 10,
	})
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	if len(results) == 0 {
		fmt.Println("(no results)")

		return
	}

	for i, res := range results {
		fmt.Printf("%3d. %s  score=%.4f (sem=%.4f txt=%.4f)  %s\n",
			i+1, res.Memory.MemoryID, res.SearchScore, res.SemanticScore, res.TextScore, truncate(res.Memory.Content, 50))
	}
}

func (r *REPL) cmdFork(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: fork <fork-id>")

		return
	}

	forkID, err := r.store.CreateFork(memstore.MainStoreID, memstore.CreateForkOptions{ForkID: args[0]})
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: created fork %s\n", forkID)
}

func (r *REPL) cmdForks() {
	for _, id := range r.store.StoreIDs() {
		fmt.Println(id)
	}
}

func (r *REPL) cmdVerify(args []string) {
	storeID := storeIDOrMain(args, 0)

	report, err := r.store.VerifyIntegrity(storeID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: %v  merkle_root_mismatch=%v  record_count_mismatch=%v  (live=%d rebuilt=%d)\n",
		report.OK, report.MerkleRootMismatch, report.RecordCountMismatch, report.LiveLeafCount, report.RebuiltLeafCount)
}

func (r *REPL) cmdRebuild(args []string) {
	storeID := storeIDOrMain(args, 0)

	if err := r.store.RebuildIndexes(storeID); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: indexes rebuilt")
}

func (r *REPL) cmdCompact(args []string) {
	storeID := storeIDOrMain(args, 0)

	rotated, total, err := r.store.CompactWAL(storeID)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Printf("OK: rotated=%v total_records=%d\n", rotated, total)
}

func printMemory(m *record.Memory) {
	fmt.Printf("id:          %s\n", m.MemoryID)
	fmt.Printf("version:     %d\n", m.Version)
	fmt.Printf("category:    %s\n", m.Category)
	fmt.Printf("type:        %s\n", m.Type)
	fmt.Printf("content:     %s\n", m.Content)
	fmt.Printf("tags:        %s\n", strings.Join(m.Tags, ", "))
	fmt.Printf("importance:  %d\n", m.Importance)
	fmt.Printf("deleted:     %v\n", m.Deleted)
	fmt.Printf("content_hash: %s\n", m.ContentHash)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n] + "..."
}
