// Package agents answers whether an agent id exists before a trigger is bound to it
package agents

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"trigger-engine/internal/circuitbreaker"
	"trigger-engine/internal/common/errors"
	commonhttp "trigger-engine/internal/common/http"
	"trigger-engine/internal/common/logging"
)

const (
	dependencyName   = "agent_lookup"
	defaultCacheSize = 512
	defaultCacheTTL  = time.Minute
)

// Wildcard in a static list admits every agent id
const Wildcard = "*"

// StaticList admits a fixed set of agent ids
type StaticList struct {
	ids map[string]struct{}
	any bool
}

// NewStaticList builds a list from ids; blank entries are ignored and "*" admits everything
func NewStaticList(ids ...string) *StaticList {
	l := &StaticList{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		switch id {
		case "":
		case Wildcard:
			l.any = true
		default:
			l.ids[id] = struct{}{}
		}
	}
	return l
}

func (l *StaticList) AgentExists(ctx context.Context, agentID string) (bool, error) {
	if l.any {
		return agentID != "", nil
	}
	_, ok := l.ids[agentID]
	return ok, nil
}

// Directory asks a remote agent service: GET {base}/agents/{id}. 2xx means the agent exists,
// 404 that it does not. Positive answers are cached for a short while.
type Directory struct {
	client *commonhttp.JSONClient
	known  *expirable.LRU[string, struct{}]
	logger logging.Logger
}

func NewDirectory(baseURL, token string, timeout time.Duration, logger logging.Logger) *Directory {
	logger = logging.OrGlobal(logger).WithFields(logging.Field{"component", "agent_directory"})
	breaker := circuitbreaker.New(dependencyName, circuitbreaker.AgentLookupConfig, logger)
	return &Directory{
		client: commonhttp.NewJSONClient(dependencyName, baseURL, token,
			commonhttp.NewHTTPClient(commonhttp.WithTimeout(timeout)), breaker, logger),
		known:  expirable.NewLRU[string, struct{}](defaultCacheSize, nil, defaultCacheTTL),
		logger: logger,
	}
}

func (d *Directory) AgentExists(ctx context.Context, agentID string) (bool, error) {
	if strings.TrimSpace(agentID) == "" {
		return false, nil
	}
	if _, ok := d.known.Get(agentID); ok {
		return true, nil
	}

	err := d.client.Do(ctx, http.MethodGet, "/agents/"+url.PathEscape(agentID), nil, nil)
	switch {
	case err == nil:
		d.known.Add(agentID, struct{}{})
		return true, nil
	case errors.IsType(err, errors.ErrTypeNotFound):
		return false, nil
	case errors.IsType(err, errors.ErrTypeDependency):
		return false, err
	default:
		return false, errors.DependencyUnavailableError(dependencyName, err)
	}
}
