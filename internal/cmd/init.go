package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/swapup/internal/config"
	"github.com/adamancini/swapup/internal/templates"
)

// maxStarterSize bounds a starter config fetched over HTTP.
const maxStarterSize = 1 << 20

// initOptions are the inputs of swapup init. Source is a style name, an
// http(s) URL of a starter config, or empty to ask.
type initOptions struct {
	Source string
	Repo   string
	Asset  string
	Output string
	Force  bool
}

func (o initOptions) remote() bool {
	return strings.HasPrefix(o.Source, "http://") || strings.HasPrefix(o.Source, "https://")
}

func newInitCmd() *cobra.Command {
	var opts initOptions

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter updater file",
		Long: `Write a starter updater file for one of the update styles, or fetch
one published next to your releases.

Styles:
  archive     - Extract a zip release into a directory in place
  executable  - Replace a single executable from release assets

Examples:
  swapup init                                     # Ask for style and repository
  swapup init --template executable --repo acme/tool
  swapup init --template archive --repo tukui-org/ElvUI --config ./swapup.yaml
  swapup init --template https://example.com/swapup.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Output = configPath
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Source, "template", "t", "", "Update style or URL of a starter config")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "GitHub repository publishing the releases (owner/name)")
	cmd.Flags().StringVar(&opts.Asset, "asset", "", "Release asset name pattern")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing updater file")

	_ = cmd.RegisterFlagCompletionFunc("template", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var completions []string
		for _, style := range templates.Styles() {
			completions = append(completions, style+"\t"+templates.Summary(style))
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// runInit writes a starter updater file. Anything not given by flag is
// asked for on stdin; an empty answer keeps the default.
func runInit(stdin io.Reader, stdout, stderr io.Writer, opts initOptions) error {
	reader := bufio.NewReader(stdin)
	askedOutput := opts.Output == ""
	if askedOutput {
		opts.Output = defaultConfigPath()
	}
	opts.Output = expandHomePath(opts.Output)

	if _, err := os.Stat(opts.Output); err == nil && !opts.Force {
		_, _ = fmt.Fprintf(stderr, "Updater file already exists at %s\n", opts.Output)
		if !confirm(reader, stdout, "Replace it?") {
			_, _ = fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}

	interactive := opts.Source == ""
	if interactive {
		source, err := chooseStarter(reader, stdout)
		if err != nil {
			return err
		}
		opts.Source = source
	}

	var body []byte
	if opts.remote() {
		fetched, err := fetchStarter(opts.Source)
		if err != nil {
			return fmt.Errorf("fetch starter config: %w", err)
		}
		body = fetched
	} else {
		starter, err := templates.Lookup(opts.Source)
		if err != nil {
			return err
		}
		if interactive && opts.Repo == "" {
			opts.Repo = ask(reader, stdout, "GitHub repository publishing the releases (owner/name, blank to edit later)", "")
		}
		rendered, err := starter.Render(templates.Project{Repo: opts.Repo, Asset: opts.Asset})
		if err != nil {
			return err
		}
		body = rendered
	}

	if err := checkStarter(body); err != nil {
		return fmt.Errorf("invalid starter config: %w", err)
	}

	if !opts.remote() && !quiet {
		showStarter(stdout, opts.Source, body)
	}

	if askedOutput && !quiet {
		if answer := ask(reader, stdout, "Write the updater file to", opts.Output); answer != "" {
			opts.Output = expandHomePath(answer)
		}
	}

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(opts.Output), err)
	}
	if err := os.WriteFile(opts.Output, body, 0644); err != nil {
		return fmt.Errorf("write updater file: %w", err)
	}

	_, _ = fmt.Fprintf(stdout, "\nCreated %s\n", opts.Output)
	_, _ = fmt.Fprintln(stdout, "\nNext steps:")
	if opts.Repo == "" && !opts.remote() {
		_, _ = fmt.Fprintln(stdout, "  - Replace OWNER/REPO and the asset pattern with your project's")
	}
	_, _ = fmt.Fprintln(stdout, "  - Run 'swapup check' to see which release would be offered")
	_, _ = fmt.Fprintln(stdout, "  - Run 'swapup update' to install it")

	return nil
}

// chooseStarter lists the built-in styles plus a remote entry and returns
// the chosen style or the URL typed for the remote entry.
func chooseStarter(reader *bufio.Reader, stdout io.Writer) (string, error) {
	styles := templates.Styles()
	remote := len(styles) + 1

	_, _ = fmt.Fprintln(stdout, "\nHow should swapup apply an update?")
	for i, style := range styles {
		_, _ = fmt.Fprintf(stdout, "  %d. %-12s - %s\n", i+1, style, templates.Summary(style))
	}
	_, _ = fmt.Fprintf(stdout, "  %d. %-12s - Fetch a starter config from a URL\n", remote, "remote")
	_, _ = fmt.Fprintf(stdout, "\nSelect [1-%d]: ", remote)

	answer, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	answer = strings.TrimSpace(answer)

	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > remote {
		return "", fmt.Errorf("invalid selection: %s", answer)
	}
	if n < remote {
		return styles[n-1], nil
	}

	_, _ = fmt.Fprint(stdout, "Starter config URL: ")
	url, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read URL: %w", err)
	}
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("starter config URL must be http or https, got %q", url)
	}
	return url, nil
}

// fetchStarter downloads a published starter config.
func fetchStarter(url string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStarterSize+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxStarterSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", url, maxStarterSize)
	}
	return body, nil
}

// checkStarter runs body through config.Load so a starter that would not
// load is never written.
func checkStarter(body []byte) error {
	f, err := os.CreateTemp("", "swapup-starter-*.yaml")
	if err != nil {
		return err
	}
	name := f.Name()
	defer func() { _ = os.Remove(name) }()

	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	_, err = config.Load(name)
	return err
}

// showStarter prints the head of a rendered starter.
func showStarter(stdout io.Writer, style string, body []byte) {
	const head = 20

	_, _ = fmt.Fprintf(stdout, "\n%s starter:\n", style)
	_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
	lines := strings.Split(strings.TrimRight(string(body), "\n"), "\n")
	for i, line := range lines {
		if i == head {
			_, _ = fmt.Fprintf(stdout, "... (%d more lines)\n", len(lines)-head)
			break
		}
		_, _ = fmt.Fprintln(stdout, line)
	}
	_, _ = fmt.Fprintln(stdout, strings.Repeat("-", 40))
}

// ask prints prompt and returns the trimmed answer, or def when the answer
// is empty or stdin is exhausted.
func ask(reader *bufio.Reader, stdout io.Writer, prompt, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(stdout, "\n%s [%s]: ", prompt, def)
	} else {
		_, _ = fmt.Fprintf(stdout, "\n%s: ", prompt)
	}
	answer, _ := reader.ReadString('\n')
	if answer = strings.TrimSpace(answer); answer != "" {
		return answer
	}
	return def
}

func confirm(reader *bufio.Reader, stdout io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(stdout, "%s [y/N]: ", prompt)
	answer, _ := reader.ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

// defaultConfigPath returns the first location FindConfig searches.
func defaultConfigPath() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "swapup", "swapup.yaml")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "swapup.yaml"
	}
	return filepath.Join(home, ".config", "swapup", "swapup.yaml")
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
