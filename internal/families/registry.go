// Package families maps every ordered entity of the catalog onto its table,
// seq column and sibling scope.
package families

import (
	"fmt"
	"sort"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

// Family names
const (
	Category              = "category"
	KeywordCategory       = "keyword_category"
	AudioSubGroup         = "audio_sub_group"
	Audio                 = "audio"
	Book                  = "book"
	BookChapter           = "book_chapter"
	BookContent           = "book_content"
	Topic                 = "topic"
	TopicCategory         = "topic_category"
	TopicContent          = "topic_content"
	Topic2                = "topic2"
	Topic2Chapter         = "topic2_chapter"
	Topic2Content         = "topic2_content"
	Topic3                = "topic3"
	Topic3Chapter         = "topic3_chapter"
	Topic3Content         = "topic3_content"
	Topic3ContentCategory = "topic3_content_category"
	VideoCategory         = "video_category"
	VideoSubGroup         = "video_sub_group"
	Video                 = "video"
	CommunityPlaylistItem = "community_playlist_item"
)

// KeywordType is the category type shared by all keyword categories
const KeywordType = "keyword"

// Options tunes scope resolution
type Options struct {
	// TopicCategoryID is the category a topic belongs to when it names none
	TopicCategoryID int64
}

// Registry holds every known family
type Registry struct {
	families map[string]domain.Family
	names    []string
}

var _ domain.FamilyRegistry = (*Registry)(nil)

// New builds the registry of all catalog families
func New(opts Options) *Registry {
	r := &Registry{families: make(map[string]domain.Family)}
	for _, f := range all(opts) {
		r.families[f.Name] = f
		r.names = append(r.names, f.Name)
	}
	sort.Strings(r.names)
	return r
}

// Lookup returns the family registered under name
func (r *Registry) Lookup(name string) (domain.Family, error) {
	f, ok := r.families[name]
	if !ok {
		return domain.Family{}, fmt.Errorf("%q: %w", name, domain.ErrUnknownFamily)
	}
	return f, nil
}

// Names lists the registered family names in sorted order
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Models returns one zero model per table, for schema migration
func (r *Registry) Models() []interface{} {
	seen := make(map[string]bool)
	var models []interface{}
	for _, name := range r.names {
		f := r.families[name]
		if seen[f.Table] {
			continue
		}
		seen[f.Table] = true
		models = append(models, f.New())
	}
	return models
}
