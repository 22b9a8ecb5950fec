package mizar

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: mizar <command> [arguments]")
	colSuccess.Println("Run 'mizar <command> -h' for command options")
	fmt.Println()
	colInfo.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"build, b", "[-f] [-stages list] [-from stage] <descriptor>", "Run the full construction pipeline"},
		{"fetch, f", "[-f] <descriptor>", "Fetch and verify sources only"},
		{"checksum, c", "<descriptor>", "Fetch sources and print their checksums"},
		{"fingerprint", "<descriptor>", "Print the build fingerprint"},
		{"detect", "<dir>", "Print the detected build system for a directory"},
		{"manifest, m", "<name-version>", "Show the installed-file manifest"},
		{"log", "<name-version>", "Show the stored build log"},
		{"publish", "<name-version>", "Upload a built package to the binary mirror"},
		{"mirror", "[prefix]", "List packages published to the binary mirror"},
		{"version, --version", "", "Version information"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 3

	for _, c := range cmds {
		usageString := c.Cmd
		if c.Args != "" {
			usageString += " " + c.Args
		}
		colSuccess.Print("  " + usageString)
		pad := columnWidth - len(usageString)
		if pad < 1 {
			pad = 1
		}
		fmt.Print(strings.Repeat(" ", pad))
		colInfo.Println(c.Desc)
	}
	fmt.Println()
}

func fatal(err error) {
	colArrow.Print("-> ")
	colError.Printf("%v\n", err)
	os.Exit(exitCodeFor(err))
}

// Main is the CLI entrypoint for mizar.
func Main() {
	// 1. CONTEXT AND SIGNAL SETUP
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-sigs:
				colArrow.Print("\n-> ")
				color.Danger.Printf("Received %v. Cancelling process gracefully\n", sig)
				cancel()

				// Give the running command a moment to die and flush.
				time.Sleep(100 * time.Millisecond)

				select {
				case <-sigs:
					colArrow.Print("\n-> ")
					color.Danger.Printf("Second interrupt received. Forcing immediate exit.")
					os.Exit(130)
				case <-time.After(2 * time.Second):
					colArrow.Print("\n-> ")
					color.Danger.Printf("Graceful shutdown timeout. Exiting.")
					os.Exit(130)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if len(os.Args) < 2 {
		printHelp()
		return
	}

	configPath := ConfigFile
	if root := os.Getenv("MIZAR_ROOT"); root != "" {
		if p := filepath.Join(root, "etc", "mizar.conf"); fileExists(p) {
			configPath = p
		}
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		warnf("Could not read %s: %v\n", configPath, err)
	}

	execCtx := NewExecutor(ctx)

	switch os.Args[1] {
	case "build", "b":
		fs := flag.NewFlagSet("build", flag.ExitOnError)
		force := fs.Bool("f", false, "re-fetch sources even when cached")
		stages := fs.String("stages", "", "comma-separated subset of stages to run")
		from := fs.String("from", "", "resume from this stage")
		verbose := fs.Bool("v", false, "stream build output to the terminal")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: mizar build [-f] [-stages list] [-from stage] <descriptor>")
			os.Exit(exitUsage)
		}
		Verbose = *verbose
		d, err := LoadDescriptor(fs.Arg(0))
		if err != nil {
			fatal(err)
		}
		opts := ConstructOptions{From: *from, Force: *force}
		if *stages != "" {
			opts.Stages = strings.Split(*stages, ",")
		}
		if err := Construct(cfg, d, execCtx, opts); err != nil {
			fatal(err)
		}

	case "fetch", "f":
		fs := flag.NewFlagSet("fetch", flag.ExitOnError)
		force := fs.Bool("f", false, "re-fetch sources even when cached")
		fs.Parse(os.Args[2:])
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "Usage: mizar fetch [-f] <descriptor>")
			os.Exit(exitUsage)
		}
		d, err := LoadDescriptor(fs.Arg(0))
		if err != nil {
			fatal(err)
		}
		if err := FetchSources(cfg, d, *force); err != nil {
			fatal(err)
		}

	case "checksum", "c":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar checksum <descriptor>")
			os.Exit(exitUsage)
		}
		d, err := LoadDescriptor(os.Args[2])
		if err != nil {
			fatal(err)
		}
		if err := PrintChecksums(cfg, d); err != nil {
			fatal(err)
		}

	case "fingerprint":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar fingerprint <descriptor>")
			os.Exit(exitUsage)
		}
		d, err := LoadDescriptor(os.Args[2])
		if err != nil {
			fatal(err)
		}
		fmt.Println(d.Fingerprint())

	case "detect":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar detect <dir>")
			os.Exit(exitUsage)
		}
		fmt.Println(DetectBuildSystem(os.Args[2]))

	case "manifest", "m":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar manifest <name-version>")
			os.Exit(exitUsage)
		}
		lines, err := loadManifest(cfg, os.Args[2])
		if err != nil {
			fatal(err)
		}
		if err := RunPager("Manifest "+os.Args[2], lines); err != nil {
			fatal(err)
		}

	case "log":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar log <name-version>")
			os.Exit(exitUsage)
		}
		lines, err := loadBuildLog(cfg, os.Args[2])
		if err != nil {
			fatal(err)
		}
		if err := RunPager("Build log "+os.Args[2], lines); err != nil {
			fatal(err)
		}

	case "publish":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: mizar publish <name-version>")
			os.Exit(exitUsage)
		}
		if err := Publish(ctx, cfg, os.Args[2]); err != nil {
			fatal(err)
		}

	case "mirror":
		prefix := ""
		if len(os.Args) > 2 {
			prefix = os.Args[2]
		}
		client, err := NewMirrorClient(ctx, cfg)
		if err != nil {
			fatal(err)
		}
		keys, err := client.ListObjects(ctx, prefix)
		if err != nil {
			fatal(err)
		}
		if len(keys) == 0 {
			infof("Mirror holds no objects under %q\n", prefix)
			return
		}
		if err := RunPager("Mirror contents", keys); err != nil {
			fatal(err)
		}

	case "version", "--version":
		fmt.Printf("mizar %s (%s, built %s)\n", version, arch, buildDate)

	case "help", "-h", "--help":
		printHelp()

	default:
		colArrow.Print("-> ")
		colError.Printf("Unknown command: %s\n", os.Args[1])
		printHelp()
		os.Exit(exitUsage)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// PrintChecksums fetches the descriptor's sources and prints a checksum
// line per source, ready to paste into the checksums key.
func PrintChecksums(cfg *Config, d *Descriptor) error {
	if err := FetchSources(cfg, d, false); err != nil {
		return err
	}
	cacheDir := d.SourceCacheDir(cfg)
	for _, spec := range d.Sources {
		var path string
		switch spec.Kind {
		case SourceGit:
			repoName := strings.TrimSuffix(filepath.Base(spec.URL), ".git")
			path = filepath.Join(cacheDir, repoName+".tar.gz")
		case SourceLocal:
			path = spec.URL
			if !filepath.IsAbs(path) {
				path = filepath.Join(d.Dir, path)
			}
		default:
			path = filepath.Join(cacheDir, urlBasename(spec.URL))
		}
		sum, err := ComputeChecksum(path)
		if err != nil {
			return fmt.Errorf("could not checksum %s: %w", spec.Raw, err)
		}
		fmt.Printf("%s  %s\n", sum, spec.Raw)
	}
	return nil
}
