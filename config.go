package main

import (
	"fmt"
	"os"

	"github.com/gamma-omg/contextqa/chunker"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogFile        string `yaml:"log"`
	ServerAddr     string `yaml:"server_addr"`
	MCPAddr        string `yaml:"mcp_addr"`
	DataDir        string `yaml:"data_dir"`
	DocRoot        string `yaml:"doc_root"`
	MergeEventsMs  int    `yaml:"write_debounce_ms"`
	ChunkSeparator string `yaml:"chunk_separator"`
	ChunkSize      int    `yaml:"chunk_size"`
	// ChunkOverlap is a pointer so an explicit zero survives defaulting.
	ChunkOverlap *int `yaml:"chunk_overlap"`
	Results        int    `yaml:"results"`
	ChatBuffer     int    `yaml:"chat_buffer"`
	Chroma         *struct {
		Addr        string `yaml:"addr"`
		Collection  string `yaml:"collection"`
		RequestSize int    `yaml:"request_size"`
	} `yaml:"chroma"`
	OpenAI *struct {
		Model          string `yaml:"model"`
		EmbeddingModel string `yaml:"embedding_model"`
		ApiKey         string `yaml:"api_key"`
	} `yaml:"open_ai"`
	Gemini *struct {
		Model  string `yaml:"model"`
		ApiKey string `yaml:"api_key"`
	} `yaml:"gemini"`
}

func readConfig(cfgPath string) (*Config, error) {
	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := &Config{}
	dec := yaml.NewDecoder(cfgFile)
	err = dec.Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerAddr == "" {
		c.ServerAddr = "localhost:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ChunkSeparator == "" {
		c.ChunkSeparator = "\n"
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 2000
	}
	if c.ChunkOverlap == nil {
		overlap := 200
		c.ChunkOverlap = &overlap
	}
}

// chunkConfig is the default chunking used when a request does not override
// it.
func (c *Config) chunkConfig() chunker.Config {
	return chunker.Config{
		Separator:    c.ChunkSeparator,
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: *c.ChunkOverlap,
	}
}
