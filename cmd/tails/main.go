// Tails CLI - an interactive interpreter for the Tails language
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/tails-lang/tails/compiler"
	"github.com/tails-lang/tails/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("tails")

// promptIndent is the column the prompt sits at; the stack echo is
// right-justified against it.
const promptIndent = 40

// Config is the optional tails.toml in the working directory.
type Config struct {
	Prompt  string   `toml:"prompt"`
	Trace   bool     `toml:"trace"`
	Preload []string `toml:"preload"`
}

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	interactive := flag.Bool("i", false, "Start the REPL even after running files")
	trace := flag.Bool("trace", false, "Log every instruction executed")
	expr := flag.String("e", "", "Evaluate an expression-syntax program and exit")
	noRC := flag.Bool("no-rc", false, "Skip loading tails.toml and its preloads")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tails [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the given Forth-syntax files; starts the REPL when no files are given, or with -i.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tails                  # Start REPL\n")
		fmt.Fprintf(os.Stderr, "  tails -i lib.tails     # Load definitions, then REPL\n")
		fmt.Fprintf(os.Stderr, "  tails -e '3 + 4 * 5'   # Evaluate an expression\n")
	}
	flag.Parse()

	var cfg Config
	if !*noRC {
		if err := loadConfig(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error loading tails.toml: %v\n", err)
		}
	}

	verbosity := 0
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)

	interp := vm.NewInterp()
	if *trace || cfg.Trace {
		interp.Trace = func(op vm.Opcode, depth int) {
			log.Debugf("exec %-12s depth=%d", op, depth)
		}
	}

	files := append(cfg.Preload, flag.Args()...)
	for _, path := range files {
		if err := runFile(interp, path); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", path, err)
			os.Exit(1)
		}
		if *verbose {
			log.Infof("loaded %s", path)
		}
	}

	if *expr != "" {
		if err := evalExpression(interp, *expr); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}
	if len(flag.Args()) > 0 && !*interactive {
		return
	}

	repl(interp, cfg)
}

func loadConfig(cfg *Config) error {
	data, err := os.ReadFile("tails.toml")
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return toml.Unmarshal(data, cfg)
}

// runFile compiles and runs a file of Forth-syntax source, sharing the
// interpreter's persistent stack.
func runFile(interp *vm.Interp, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	word, err := compiler.ParseForthOnStack(string(data), interp.Stack)
	if err != nil {
		return err
	}
	return interp.Run(word)
}

// evalExpression compiles expression-syntax source and prints the values
// it leaves.
func evalExpression(interp *vm.Interp, source string) error {
	word, err := compiler.NewParser().Parse(source)
	if err != nil {
		return err
	}
	if err := interp.Run(word); err != nil {
		return err
	}
	for _, v := range interp.Stack {
		fmt.Println(v)
	}
	return nil
}

// repl reads lines, treating each as a top-level program whose results
// stay on the persistent stack. An empty line clears the stack.
func repl(interp *vm.Interp, cfg Config) {
	prompt := cfg.Prompt
	if prompt == "" {
		prompt = " > "
	}
	fmt.Println("Tails interpreter.  Empty line clears stack.  Ctrl-D to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		printStack(interp.Stack)
		fmt.Print(prompt)
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if len(interp.Stack) == 0 {
				rightJustified("Cleared stack.")
				fmt.Println()
			}
			interp.Stack = nil
			continue
		}
		evalLine(interp, line, len(prompt))
	}
}

func evalLine(interp *vm.Interp, line string, promptLen int) {
	word, err := compiler.ParseForthOnStack(line, interp.Stack)
	if err != nil {
		var ce *compiler.Error
		if errors.As(err, &ce) && ce.Pos >= 0 && ce.Pos <= len(line) {
			fmt.Println(strings.Repeat(" ", promptIndent+promptLen+ce.Pos) + "^")
		}
		fmt.Printf("%sError: %v\n", strings.Repeat(" ", promptIndent+promptLen), err)
		return
	}
	if err := interp.Run(word); err != nil {
		fmt.Printf("%sError: %v\n", strings.Repeat(" ", promptIndent+promptLen), err)
	}
}

// printStack echoes the stack right-justified against the prompt column.
func printStack(stack []vm.Value) {
	var sb strings.Builder
	for _, v := range stack {
		sb.WriteString(v.String())
		sb.WriteByte(' ')
	}
	rightJustified(sb.String())
}

func rightJustified(s string) {
	if len(s) > promptIndent {
		s = s[len(s)-promptIndent:]
	}
	fmt.Print(strings.Repeat(" ", promptIndent-len(s)) + s)
}
