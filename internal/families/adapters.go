package families

import (
	"fmt"

	"github.com/rizkypsr/cms-masterlu/internal/domain"
)

func all(opts Options) []domain.Family {
	return []domain.Family{
		family(Category, "category", "seq",
			func() domain.OrderedEntity { return &domain.Category{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.Category)
				if c.Type == "" {
					return domain.Scope{}, missing(f, "type")
				}
				return f.Scope(nullable("parent_id", c.ParentID), eq("type", c.Type), eq("language", c.Language)), nil
			}),

		family(KeywordCategory, "category", "seq",
			func() domain.OrderedEntity { return &domain.Category{Type: KeywordType} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.Category)
				if c.Type != KeywordType || c.ParentID != nil {
					return domain.Scope{}, fmt.Errorf("%s: must be a root category of type %q: %w", f.Name, KeywordType, domain.ErrInvalidScope)
				}
				return f.Scope(isNull("parent_id"), eq("type", KeywordType), eq("language", c.Language)), nil
			}),

		family(AudioSubGroup, "audio_sub_group", "seq",
			func() domain.OrderedEntity { return &domain.AudioSubGroup{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "audio_category_id", e.(*domain.AudioSubGroup).AudioCategoryID)
			}),

		family(Audio, "audio", "seq",
			func() domain.OrderedEntity { return &domain.Audio{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "audio_sub_group_id", e.(*domain.Audio).AudioSubGroupID)
			}),

		family(Book, "book", "seq",
			func() domain.OrderedEntity { return &domain.Book{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "book_category_id", e.(*domain.Book).BookCategoryID)
			}),

		family(BookChapter, "book_chapters", "seq",
			func() domain.OrderedEntity { return &domain.BookChapter{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.BookChapter)
				return tree(f, "book_id", c.BookID, c.ParentID)
			}),

		family(BookContent, "book_contents", "page",
			func() domain.OrderedEntity { return &domain.BookContent{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "book_chapters_id", e.(*domain.BookContent).BookChaptersID)
			}),

		family(Topic, "topics", "seq",
			func() domain.OrderedEntity { return &domain.Topic{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				t := e.(*domain.Topic)
				if t.CategoryID == 0 {
					t.CategoryID = opts.TopicCategoryID
				}
				return parent(f, "category_id", t.CategoryID)
			}),

		family(TopicCategory, "topics_category", "seq",
			func() domain.OrderedEntity { return &domain.TopicCategory{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.TopicCategory)
				return tree(f, "topics_id", c.TopicsID, c.ParentID)
			}),

		family(TopicContent, "topics_content", "seq",
			func() domain.OrderedEntity { return &domain.TopicContent{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "topics_category_id", e.(*domain.TopicContent).TopicsCategoryID)
			}),

		family(Topic2, "topics2", "seq",
			func() domain.OrderedEntity { return &domain.Topic2{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "book_category_id", e.(*domain.Topic2).BookCategoryID)
			}),

		family(Topic2Chapter, "topics2_chapters", "seq",
			func() domain.OrderedEntity { return &domain.Topic2Chapter{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.Topic2Chapter)
				return tree(f, "topics2_id", c.Topics2ID, c.ParentID)
			}),

		family(Topic2Content, "topics2_contents", "page",
			func() domain.OrderedEntity { return &domain.Topic2Content{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "topics2_chapters_id", e.(*domain.Topic2Content).Topics2ChaptersID)
			}),

		family(Topic3, "topics3", "seq",
			func() domain.OrderedEntity { return &domain.Topic3{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "book_category_id", e.(*domain.Topic3).BookCategoryID)
			}),

		family(Topic3Chapter, "topics3_chapters", "seq",
			func() domain.OrderedEntity { return &domain.Topic3Chapter{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.Topic3Chapter)
				return tree(f, "topics3_id", c.Topics3ID, c.ParentID)
			}),

		family(Topic3Content, "topics3_contents", "page",
			func() domain.OrderedEntity { return &domain.Topic3Content{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "topics3_chapters_id", e.(*domain.Topic3Content).Topics3ChaptersID)
			}),

		// a single list over the whole table
		family(Topic3ContentCategory, "topics3_content_category", "seq",
			func() domain.OrderedEntity { return &domain.Topic3ContentCategory{} },
			func(f domain.Family, _ domain.OrderedEntity) (domain.Scope, error) {
				return f.Scope(), nil
			}),

		family(VideoCategory, "video_category", "seq",
			func() domain.OrderedEntity { return &domain.VideoCategory{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				c := e.(*domain.VideoCategory)
				if c.ParentID != nil {
					return parent(f, "parent_id", *c.ParentID)
				}
				if c.SubCategoryID == nil || *c.SubCategoryID <= 0 {
					return domain.Scope{}, missing(f, "parent_id or sub_category_id")
				}
				return f.Scope(eq("sub_category_id", *c.SubCategoryID), isNull("parent_id")), nil
			}),

		family(VideoSubGroup, "video_sub_group", "seq",
			func() domain.OrderedEntity { return &domain.VideoSubGroup{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "video_id", e.(*domain.VideoSubGroup).VideoID)
			}),

		family(Video, "video", "seq",
			func() domain.OrderedEntity { return &domain.Video{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				v := e.(*domain.Video)
				if v.VideoSubGroupID != nil {
					return parent(f, "video_sub_group_id", *v.VideoSubGroupID)
				}
				if v.VideoCategoryID == nil || *v.VideoCategoryID <= 0 {
					return domain.Scope{}, missing(f, "video_sub_group_id or video_category_id")
				}
				return f.Scope(eq("video_category_id", *v.VideoCategoryID), isNull("video_sub_group_id")), nil
			}),

		family(CommunityPlaylistItem, "community_playlist_items", "seq",
			func() domain.OrderedEntity { return &domain.CommunityPlaylistItem{} },
			func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error) {
				return parent(f, "community_playlist_id", e.(*domain.CommunityPlaylistItem).CommunityPlaylistID)
			}),
	}
}

type scopeFunc func(f domain.Family, e domain.OrderedEntity) (domain.Scope, error)

func family(name, table, seqColumn string, newFn func() domain.OrderedEntity, scopeOf scopeFunc) domain.Family {
	f := domain.Family{
		Name:      name,
		Table:     table,
		SeqColumn: seqColumn,
		New:       newFn,
	}
	f.ScopeOf = func(e domain.OrderedEntity) (domain.Scope, error) {
		if e == nil {
			return domain.Scope{}, fmt.Errorf("%s: nil entity: %w", name, domain.ErrInvalidScope)
		}
		return scopeOf(f, e)
	}
	return f
}

// parent scopes by a single mandatory foreign key
func parent(f domain.Family, column string, id int64) (domain.Scope, error) {
	if id <= 0 {
		return domain.Scope{}, missing(f, column)
	}
	return f.Scope(eq(column, id)), nil
}

// tree scopes a node by its owner and its optional parent node
func tree(f domain.Family, ownerColumn string, ownerID int64, parentID *int64) (domain.Scope, error) {
	if ownerID <= 0 {
		return domain.Scope{}, missing(f, ownerColumn)
	}
	return f.Scope(eq(ownerColumn, ownerID), nullable("parent_id", parentID)), nil
}

func eq(column string, value interface{}) domain.ScopeCond {
	return domain.ScopeCond{Column: column, Value: value}
}

func isNull(column string) domain.ScopeCond {
	return domain.ScopeCond{Column: column}
}

func nullable(column string, id *int64) domain.ScopeCond {
	if id == nil {
		return isNull(column)
	}
	return eq(column, *id)
}

func missing(f domain.Family, field string) error {
	return fmt.Errorf("%s: %s is required: %w", f.Name, field, domain.ErrInvalidScope)
}
