// Package portal provides an HTTP client for the job portal REST backend.
package portal

import (
	"fmt"
	"net/url"

	"github.com/maauso/portal-listings/internal/entity"
)

// Scope selects which collection endpoint a list call reads from.
type Scope string

const (
	// ScopePublished returns only publicly visible records.
	ScopePublished Scope = "published"
	// ScopeManaged returns all records regardless of publish status.
	ScopeManaged Scope = "managed"
)

// publishedPaths keeps the backend's inconsistent singular/plural naming.
var publishedPaths = map[entity.Type]string{
	entity.TypeJob:        "/api/published-jobs/",
	entity.TypeInternship: "/api/published-internship/",
	entity.TypeExam:       "/api/published-exams/",
}

var managedPaths = map[entity.Type]string{
	entity.TypeJob:        "/api/manage-jobs/",
	entity.TypeInternship: "/api/manage-internships/",
	entity.TypeExam:       "/api/manage-exams/",
}

// listPath returns the collection path for a type and scope.
func listPath(t entity.Type, scope Scope) (string, error) {
	paths := publishedPaths
	if scope == ScopeManaged {
		paths = managedPaths
	}
	p, ok := paths[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", entity.ErrUnknownType, t)
	}
	return p, nil
}

func savePath(t entity.Type, id string) string {
	return fmt.Sprintf("/api/save-%s/%s/", t, url.PathEscape(id))
}

func unsavePath(t entity.Type, id string) string {
	return fmt.Sprintf("/api/unsave-%s/%s/", t, url.PathEscape(id))
}

func savedListPath(t entity.Type, userID string) string {
	return fmt.Sprintf("/api/saved-%s/%s/", t.Plural(), url.PathEscape(userID))
}

func viewCountPath(id string) string {
	return fmt.Sprintf("/api/increment-view-count/%s/", url.PathEscape(id))
}

// toggleResponse is the body returned by save and unsave endpoints.
type toggleResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
