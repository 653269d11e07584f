package config

import (
	"fmt"
	"strings"
	"time"
)

// Configuration keys.
const (
	KeyConcurrency    = "concurrency"
	KeyTrunk          = "trunk"
	KeyRemote         = "remote"
	KeyReviewPlatform = "review.platform"
	KeyReviewBase     = "review.base"
	KeyReviewDraft    = "review.draft"
	KeyReviewers      = "review.reviewers"
	KeyGitHubToken    = "github.token"
	KeyGitHubRepo     = "github.repo"
	KeyGitLabToken    = "gitlab.token"
	KeyGitLabURL      = "gitlab.url"
	KeyGitLabProject  = "gitlab.project"
	KeyApprovalSecret = "approval.secret"
	KeyAllowedSigners = "approval.allowed_signers"
	KeyApprovalAddr   = "approval.addr"
	KeyNATSURL        = "nats.url"
	KeyNATSSubject    = "nats.subject"
	KeyNotifyWebhook  = "notify.webhook"
	KeyNotifySlack    = "notify.slack"
	KeyPollInterval   = "ci.poll_interval"
	KeyNoColor        = "no_color"
)

// EnvPrefix is the prefix of every phaseflow environment variable.
const EnvPrefix = "PHASEFLOW_"

// Defaults are the built-in values.
var Defaults = map[string]string{
	KeyConcurrency:    "4",
	KeyTrunk:          "main",
	KeyRemote:         "origin",
	KeyApprovalAddr:   "localhost:8787",
	KeyNATSSubject:    "phaseflow.approve",
	KeyPollInterval:   "30s",
	KeyReviewDraft:    "false",
	KeyAllowedSigners: ".phaseflow/allowed_signers",
}

// LocalKeys can be set in .phaseflow.yaml. Secrets stay out of the
// repository.
var LocalKeys = []string{
	KeyConcurrency, KeyTrunk, KeyRemote,
	KeyReviewPlatform, KeyReviewBase, KeyReviewDraft, KeyReviewers,
	KeyGitHubRepo, KeyGitLabURL, KeyGitLabProject,
	KeyAllowedSigners, KeyApprovalAddr,
	KeyNATSURL, KeyNATSSubject, KeyPollInterval,
}

// GlobalKeys can be set in ~/.config/phaseflow/config.yaml.
var GlobalKeys = append(append([]string(nil), LocalKeys...),
	KeyGitHubToken, KeyGitLabToken, KeyApprovalSecret,
	KeyNotifyWebhook, KeyNotifySlack, KeyNoColor,
)

// Phaseflow returns the resolver configuration for phaseflow.
func Phaseflow() ResolverConfig {
	return ResolverConfig{
		EnvPrefix:       EnvPrefix,
		GlobalConfigDir: "phaseflow",
		LocalConfigName: ".phaseflow.yaml",
		Defaults:        Defaults,
		ValidGlobalKeys: GlobalKeys,
		ValidLocalKeys:  LocalKeys,
	}
}

// Saver returns the SaveConfig matching Phaseflow.
func Saver() SaveConfig {
	return SaveConfig{
		GlobalConfigDir: "phaseflow",
		LocalConfigName: ".phaseflow.yaml",
		ValidGlobalKeys: GlobalKeys,
		ValidLocalKeys:  LocalKeys,
	}
}

// Settings is the typed view of a resolved configuration.
type Settings struct {
	Concurrency int
	Trunk       string
	Remote      string

	ReviewPlatform string
	ReviewBase     string
	ReviewDraft    bool
	Reviewers      []string
	GitHubToken    string
	GitHubRepo     string
	GitLabToken    string
	GitLabURL      string
	GitLabProject  string

	ApprovalSecret string
	AllowedSigners string
	ApprovalAddr   string

	NATSURL       string
	NATSSubject   string
	NotifyWebhook string
	NotifySlack   string

	PollInterval time.Duration
	NoColor      bool
}

// Settings converts the resolved values, reporting the first malformed
// one.
func (c *Resolved) Settings() (*Settings, error) {
	s := &Settings{
		Trunk:          c.Get(KeyTrunk),
		Remote:         c.Get(KeyRemote),
		ReviewPlatform: c.Get(KeyReviewPlatform),
		ReviewBase:     c.Get(KeyReviewBase),
		Reviewers:      splitList(c.Get(KeyReviewers)),
		GitHubToken:    c.Get(KeyGitHubToken),
		GitHubRepo:     c.Get(KeyGitHubRepo),
		GitLabToken:    c.Get(KeyGitLabToken),
		GitLabURL:      c.Get(KeyGitLabURL),
		GitLabProject:  c.Get(KeyGitLabProject),
		ApprovalSecret: c.Get(KeyApprovalSecret),
		AllowedSigners: c.Get(KeyAllowedSigners),
		ApprovalAddr:   c.Get(KeyApprovalAddr),
		NATSURL:        c.Get(KeyNATSURL),
		NATSSubject:    c.Get(KeyNATSSubject),
		NotifyWebhook:  c.Get(KeyNotifyWebhook),
		NotifySlack:    c.Get(KeyNotifySlack),
	}

	var err error
	if s.Concurrency, err = c.Int(KeyConcurrency); err != nil {
		return nil, err
	}
	if s.Concurrency < 0 {
		return nil, fmt.Errorf("%s: must not be negative", KeyConcurrency)
	}
	if s.ReviewDraft, err = c.Bool(KeyReviewDraft); err != nil {
		return nil, err
	}
	if s.NoColor, err = c.Bool(KeyNoColor); err != nil {
		return nil, err
	}
	if s.PollInterval, err = c.Duration(KeyPollInterval); err != nil {
		return nil, err
	}
	switch s.ReviewPlatform {
	case "", "github", "gitlab", "none":
	default:
		return nil, fmt.Errorf("%s: unknown platform %q (want github, gitlab or none)", KeyReviewPlatform, s.ReviewPlatform)
	}
	return s, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
