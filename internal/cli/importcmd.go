package cli

import (
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/koran-teknologi/koran/internal/config"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.opml>",
	Short: "Import feeds from an OPML file into sources.feeds",
	Args:  cobra.ExactArgs(1),
	RunE:  importAction,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "show what would be added without modifying config")
	rootCmd.AddCommand(importCmd)
}

type opml struct {
	Body opmlBody `xml:"body"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	XMLURL   string        `xml:"xmlUrl,attr"`
	Text     string        `xml:"text,attr"`
	Outlines []opmlOutline `xml:"outline"`
}

func importAction(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read OPML: %w", err)
	}

	var doc opml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse OPML: %w", err)
	}

	feedURLs := extractFeedURLs(doc.Body.Outlines)
	if len(feedURLs) == 0 {
		fmt.Println("No feed URLs found in OPML file.")
		return nil
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	newFeeds, skipped := newFeedURLs(cfg.Sources.Feeds, feedURLs)
	if len(newFeeds) == 0 {
		fmt.Printf("All %d feeds already present, nothing to add.\n", skipped)
		return nil
	}

	if importDryRun {
		fmt.Printf("Would add %d feeds (skipping %d duplicates):\n", len(newFeeds), skipped)
		for _, f := range newFeeds {
			fmt.Printf("  + %s\n", f)
		}
		return nil
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	if err := mergeFeeds(configPath, newFeeds); err != nil {
		return fmt.Errorf("merge feeds: %w", err)
	}

	fmt.Printf("Added %d feeds to %s, skipped %d duplicates.\n", len(newFeeds), configPath, skipped)
	return nil
}

// extractFeedURLs returns the http(s) feed URLs of outlines and their
// nested folders, in document order.
func extractFeedURLs(outlines []opmlOutline) []string {
	var urls []string
	for _, o := range outlines {
		if u, ok := feedURL(o.XMLURL); ok {
			urls = append(urls, u)
		}
		urls = append(urls, extractFeedURLs(o.Outlines)...)
	}
	return urls
}

func feedURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}

// newFeedURLs drops candidates already configured or repeated in the OPML.
func newFeedURLs(existing, candidates []string) (added []string, skipped int) {
	seen := make(map[string]bool, len(existing)+len(candidates))
	for _, f := range existing {
		seen[f] = true
	}
	for _, u := range candidates {
		if seen[u] {
			skipped++
			continue
		}
		seen[u] = true
		added = append(added, u)
	}
	return added, skipped
}

// mergeFeeds appends newFeeds to sources.feeds in config.yaml, editing the
// yaml.Node tree so comments and key order survive. The file is created
// when missing and the key is added when absent.
func mergeFeeds(configPath string, newFeeds []string) error {
	data, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config YAML: %w", err)
		}
	}

	feeds, err := ensureFeedsNode(&doc)
	if err != nil {
		return err
	}
	// Block style keeps one feed per line even when the file had "feeds: []".
	feeds.Style = 0
	for _, f := range newFeeds {
		feeds.Content = append(feeds.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Value: f,
			Style: yaml.DoubleQuotedStyle,
		})
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(configPath, out, 0o644)
}

// ensureFeedsNode returns the sequence node at sources.feeds, creating the
// document, the sources mapping or the feeds key as needed.
func ensureFeedsNode(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if doc.Kind != yaml.DocumentNode {
		return nil, errors.New("config is not a YAML document")
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("config root is not a mapping")
	}

	sources := ensureMapValue(root, "sources", yaml.MappingNode, "!!map")
	if sources.Kind != yaml.MappingNode {
		return nil, errors.New("sources is not a mapping")
	}
	feeds := ensureMapValue(sources, "feeds", yaml.SequenceNode, "!!seq")
	if feeds.Kind != yaml.SequenceNode {
		return nil, errors.New("sources.feeds is not a list")
	}
	return feeds, nil
}

func ensureMapValue(mapping *yaml.Node, key string, kind yaml.Kind, tag string) *yaml.Node {
	if v := findMapValue(mapping, key); v != nil {
		// "feeds:" with no value decodes as a null scalar.
		if v.Kind == yaml.ScalarNode && v.Tag == "!!null" {
			v.Kind, v.Tag, v.Value = kind, tag, ""
		}
		return v
	}
	v := &yaml.Node{Kind: kind, Tag: tag}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, v)
	return v
}

func findMapValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
