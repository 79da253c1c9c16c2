// cmd/spritepal/main.go
//
// Entry point for the spritepal CLI. Every command works on the project in
// the current directory (or -project) and keeps its files under .spritepal/.
//
//	spritepal build   -base base.png [-document old.palettes] [-out name] sprites...
//	spritepal merge   [-base base.png] [-out name] base.palettes more.palettes...
//	spritepal reapply [-out name]
//	spritepal serve
//	spritepal tui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hashicorp/go-multierror"

	"github.com/kingrea/spritepal/internal/config"
	"github.com/kingrea/spritepal/internal/engine"
	"github.com/kingrea/spritepal/internal/logbook"
	"github.com/kingrea/spritepal/internal/logging"
	"github.com/kingrea/spritepal/internal/server"
	"github.com/kingrea/spritepal/internal/tui"
	"github.com/kingrea/spritepal/internal/workspace"
)

const usage = `usage: spritepal <command> [flags] [inputs...]

commands:
  init      create .spritepal/ with a default config
  build     derive palettes from sprites against a base image
  merge     merge palette documents, the first one acting as the base
  reapply   rebuild the last session from disk and write it again
  serve     run the HTTP service
  tui       open the interactive session browser
`

// env bundles what every command needs.
type env struct {
	cfg     *config.Config
	logger  *logging.Logger
	journal *logbook.Logbook
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "init":
		err = runInit(args)
	case "build":
		err = runBuild(args)
	case "merge":
		err = runMerge(args)
	case "reapply":
		err = runReapply(args)
	case "serve":
		err = runServe(args)
	case "tui":
		err = runTUI(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
	if err != nil {
		die("%v", err)
	}
}

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	projectDir := fs.String("project", "", "path to the project directory (defaults to cwd)")
	return fs, projectDir
}

func setup(projectDir string) (*env, error) {
	project := projectDir
	if project == "" {
		var err error
		project, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
	}
	absoluteProject, err := filepath.Abs(project)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	if err := config.InitProjectDir(absoluteProject); err != nil {
		return nil, fmt.Errorf("init %s: %w", config.ProjectDirName, err)
	}
	cfg, err := config.NewConfig(absoluteProject)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(absoluteProject)
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open session journal: %w", err)
	}
	return &env{cfg: cfg, logger: logger, journal: journal}, nil
}

func (e *env) close() {
	_ = e.logger.Close()
}

func (e *env) openProject() (*workspace.Project, error) {
	return workspace.OpenProject(e.cfg,
		workspace.WithJournal(e.journal),
		workspace.WithLogger(e.logger),
	)
}

func (e *env) applyOutput(out string) error {
	if strings.TrimSpace(out) == "" || out == e.cfg.Project.Output.Filename {
		return nil
	}
	return e.cfg.SetOutputFilename(out)
}

func runInit(args []string) error {
	fs, projectDir := newFlagSet("init")
	_ = fs.Parse(args)
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	fmt.Printf("Initialized %s\n", e.cfg.StateRoot)
	return nil
}

func runBuild(args []string) error {
	fs, projectDir := newFlagSet("build")
	base := fs.String("base", "", "base sprite image (required)")
	doc := fs.String("document", "", "existing palette document to build on")
	out := fs.String("out", "", "output filename, saved to config.yaml")
	_ = fs.Parse(args)
	if strings.TrimSpace(*base) == "" {
		return errors.New("-base is required")
	}
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.applyOutput(*out); err != nil {
		return err
	}
	project, err := e.openProject()
	if err != nil {
		return err
	}
	if err := project.Reset(); err != nil {
		return err
	}
	var bases []string
	if *doc != "" {
		bases = append(bases, *doc)
	}
	bases = append(bases, *base)
	return finish(e, project, bases, fs.Args())
}

func runMerge(args []string) error {
	fs, projectDir := newFlagSet("merge")
	base := fs.String("base", "", "base sprite image, needed when sprites are merged too")
	out := fs.String("out", "", "output filename, saved to config.yaml")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("merge needs at least one palette document")
	}
	first := fs.Arg(0)
	if kind, err := workspace.Classify(first); err != nil || kind != workspace.KindDocument {
		return fmt.Errorf("%s is not a palette document", first)
	}
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.applyOutput(*out); err != nil {
		return err
	}
	project, err := e.openProject()
	if err != nil {
		return err
	}
	if err := project.Reset(); err != nil {
		return err
	}
	bases := []string{first}
	if *base != "" {
		bases = append(bases, *base)
	}
	return finish(e, project, bases, fs.Args()[1:])
}

// finish applies the bases in order, adds the comparison inputs, writes the
// document, and prints the report. Rejected inputs do not stop the write but
// make the command fail afterwards.
func finish(e *env, project *workspace.Project, bases, inputs []string) error {
	var rejected []error
	for _, path := range bases {
		if err := project.SetBase(path); err != nil {
			if !isReplay(err) {
				return fmt.Errorf("base %s: %w", path, err)
			}
			rejected = append(rejected, err)
		}
	}
	if len(inputs) > 0 {
		if err := project.Add(context.Background(), inputs...); err != nil {
			rejected = append(rejected, err)
		}
	}
	return writeAndReport(e, project, nil, rejected)
}

func runReapply(args []string) error {
	fs, projectDir := newFlagSet("reapply")
	out := fs.String("out", "", "output filename, saved to config.yaml")
	_ = fs.Parse(args)
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	if err := e.applyOutput(*out); err != nil {
		return err
	}
	project, err := e.openProject()
	if err != nil {
		return err
	}
	if len(project.Manifest().Paths()) == 0 {
		return errors.New("nothing to reapply: run build or merge first")
	}
	changed, err := project.Reapply(context.Background())
	var rejected []error
	if err != nil {
		rejected = append(rejected, err)
	}
	return writeAndReport(e, project, changed, rejected)
}

func writeAndReport(e *env, project *workspace.Project, changed []string, rejected []error) error {
	warnings := project.DrainWarnings()
	path, err := project.Write()
	if err != nil {
		return err
	}
	fmt.Print(renderReport(project.State(), path, changed, warnings, rejected))
	e.logger.Printf("spritepal: wrote %s with %d warning(s), %d rejected batch(es)", path, len(warnings), len(rejected))
	if len(rejected) > 0 {
		return errors.New("some inputs were rejected")
	}
	return nil
}

// isReplay reports whether err lists retained inputs that failed against an
// accepted base, as opposed to the base itself being rejected.
func isReplay(err error) bool {
	var merr *multierror.Error
	return errors.As(err, &merr)
}

func runServe(args []string) error {
	fs, projectDir := newFlagSet("serve")
	_ = fs.Parse(args)
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	settings := server.SettingsFromConfig(e.cfg)
	srv := server.NewServer(settings,
		server.WithSession(engine.NewSession(workspace.SessionOptions(e.cfg)...)),
		server.WithCodec(workspace.CodecFor(e.cfg)),
		server.WithLogger(e.logger),
		server.WithLogbook(e.journal),
		server.WithDecodeWorkers(e.cfg.Project.Decode.Workers),
		server.WithFilename(e.cfg.Project.Output.Filename),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Serving on %s (ctrl+c to stop)\n", srv.BaseURL())
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runTUI(args []string) error {
	fs, projectDir := newFlagSet("tui")
	_ = fs.Parse(args)
	e, err := setup(*projectDir)
	if err != nil {
		return err
	}
	defer e.close()
	project, err := e.openProject()
	if err != nil {
		return err
	}
	e.journal.Info("TUI opened")
	p := tea.NewProgram(
		tui.NewApp(project, tui.WithLogbook(e.journal)),
		tea.WithAltScreen(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
