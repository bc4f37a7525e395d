// ABOUTME: Interactive "limimin init" command
// ABOUTME: Prompts for Matrix credentials and writes a TOML config file

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/2389/limimin/internal/config"
)

// initAnswers are the values gathered by runInit.
type initAnswers struct {
	Homeserver  string
	UserID      string
	AccessToken string
	Username    string
	Password    string
	RecoveryKey string
	Prefix      string
	Driver      string
	DataDir     string
}

type prompter struct {
	reader *bufio.Reader
	out    io.Writer
	green  *color.Color
}

func (p *prompter) ask(label, fallback string) string {
	p.green.Fprint(p.out, "    ▶ ")
	if fallback != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, fallback)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	answer, _ := p.reader.ReadString('\n')
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallback
	}
	return answer
}

func runInit(in io.Reader, out io.Writer, configPath string) error {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	p := &prompter{reader: bufio.NewReader(in), out: out, green: color.New(color.FgGreen)}

	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	if _, err := os.Stat(configPath); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", configPath)
		if strings.ToLower(p.ask("Overwrite? [y/N]", "")) != "y" {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
		fmt.Fprintln(out)
	}

	a := initAnswers{
		Homeserver: p.ask("Matrix homeserver URL", "https://matrix.org"),
	}
	a.AccessToken = p.ask("Access token (leave empty to log in with a password)", "")
	if a.AccessToken != "" {
		a.UserID = p.ask("Matrix user ID (e.g. @limimin:matrix.org)", "")
	} else {
		a.Username = p.ask("Matrix username", "")
		a.Password = p.ask("Matrix password", "")
	}
	a.RecoveryKey = p.ask("Matrix recovery key (optional, for E2EE)", "")
	a.Prefix = p.ask("Command prefix", config.DefaultCommandPrefix)
	a.Driver = p.ask("Storage driver (json or sqlite)", config.DefaultDriver)
	a.DataDir = p.ask("Data directory", config.DefaultDataDir())

	data, err := renderConfig(a)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// Credentials live in this file
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(out)
	p.green.Fprintf(out, "    ✓ Config written to %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "    Next steps:")
	fmt.Fprintln(out, "    1. Invite the bot to a room")
	fmt.Fprintln(out, "    2. Run: limimin")
	fmt.Fprintln(out)
	return nil
}

// renderConfig encodes the answers as a TOML config file.
func renderConfig(a initAnswers) ([]byte, error) {
	doc := struct {
		Matrix    config.MatrixConfig  `toml:"matrix"`
		Bot       config.BotConfig     `toml:"bot"`
		Storage   config.StorageConfig `toml:"storage"`
		Provision struct {
			CatalogURL     string `toml:"catalog_url"`
			RequestTimeout string `toml:"request_timeout"`
		} `toml:"provision"`
		Logging config.LoggingConfig `toml:"logging"`
	}{
		Matrix: config.MatrixConfig{
			Homeserver:  a.Homeserver,
			UserID:      a.UserID,
			AccessToken: a.AccessToken,
			Username:    a.Username,
			Password:    a.Password,
			RecoveryKey: a.RecoveryKey,
		},
		Bot: config.BotConfig{
			CommandPrefix: a.Prefix,
			AllowedRooms:  []string{},
		},
		Storage: config.StorageConfig{Driver: a.Driver, DataDir: a.DataDir},
		Logging: config.LoggingConfig{Level: config.DefaultLogLevel, Format: config.DefaultLogFormat},
	}
	doc.Provision.CatalogURL = config.DefaultCatalogURL
	doc.Provision.RequestTimeout = config.DefaultRequestTimeout.String()

	var buf strings.Builder
	buf.WriteString("# limimin configuration\n# Generated by limimin init\n\n")
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return []byte(buf.String()), nil
}
