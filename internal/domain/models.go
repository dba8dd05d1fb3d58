package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Category is a node of the shared category tree (audio, book, video,
// keyword ...). Siblings share parent, type and language.
type Category struct {
	ID        int64      `json:"id" gorm:"primaryKey"`
	Code      string     `json:"code"`
	Title     string     `json:"title"`
	ParentID  *int64     `json:"parent_id" gorm:"index"`
	Seq       int        `json:"seq"`
	Type      string     `json:"type" gorm:"index"`
	Language  string     `json:"language"`
	Date      *time.Time `json:"date"`
	Image     string     `json:"image"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Category) TableName() string      { return "category" }
func (c *Category) EntityID() int64     { return c.ID }
func (c *Category) Position() int       { return c.Seq }
func (c *Category) SetPosition(seq int) { c.Seq = seq }

// AudioSubGroup groups audio lessons under an audio category
type AudioSubGroup struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	AudioCategoryID int64     `json:"audio_category_id" gorm:"index"`
	Name            string    `json:"name"`
	Seq             int       `json:"seq"`
	HaveChild       bool      `json:"have_child"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (AudioSubGroup) TableName() string      { return "audio_sub_group" }
func (g *AudioSubGroup) EntityID() int64     { return g.ID }
func (g *AudioSubGroup) Position() int       { return g.Seq }
func (g *AudioSubGroup) SetPosition(seq int) { g.Seq = seq }

// Audio is one audio lesson
type Audio struct {
	ID              int64     `json:"id" gorm:"primaryKey"`
	AudioSubGroupID int64     `json:"audio_sub_group_id" gorm:"index"`
	Title           string    `json:"title"`
	URL             string    `json:"url" gorm:"column:url"`
	Duration        string    `json:"duration"`
	Seq             int       `json:"seq"`
	TranslateID     *int64    `json:"translate_id" gorm:"column:translate_id"`
	TranslateCH     *int64    `json:"translate_ch" gorm:"column:translate_ch"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (Audio) TableName() string      { return "audio" }
func (a *Audio) EntityID() int64     { return a.ID }
func (a *Audio) Position() int       { return a.Seq }
func (a *Audio) SetPosition(seq int) { a.Seq = seq }

// Book is an e-book under a book category
type Book struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	BookCategoryID int64      `json:"book_category_id" gorm:"index"`
	Title          string     `json:"title"`
	Synopsis       string     `json:"synopsis"`
	URL            string     `json:"url" gorm:"column:url"`
	URLPDF         string     `json:"url_pdf" gorm:"column:url_pdf"`
	Seq            int        `json:"seq"`
	Date           *time.Time `json:"date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Book) TableName() string      { return "book" }
func (b *Book) EntityID() int64     { return b.ID }
func (b *Book) Position() int       { return b.Seq }
func (b *Book) SetPosition(seq int) { b.Seq = seq }

// BookChapter is a node of a book's chapter tree
type BookChapter struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	BookID      int64     `json:"book_id" gorm:"index"`
	ParentID    *int64    `json:"parent_id" gorm:"index"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Seq         int       `json:"seq"`
	HaveChild   bool      `json:"have_child"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (BookChapter) TableName() string      { return "book_chapters" }
func (c *BookChapter) EntityID() int64     { return c.ID }
func (c *BookChapter) Position() int       { return c.Seq }
func (c *BookChapter) SetPosition(seq int) { c.Seq = seq }

// BookContent is one page of a chapter; its page number is the seq
type BookContent struct {
	ID             int64     `json:"id" gorm:"primaryKey"`
	BookChaptersID int64     `json:"book_chapters_id" gorm:"column:book_chapters_id;index"`
	Content        string    `json:"content"`
	Page           int       `json:"page"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (BookContent) TableName() string      { return "book_contents" }
func (c *BookContent) EntityID() int64     { return c.ID }
func (c *BookContent) Position() int       { return c.Page }
func (c *BookContent) SetPosition(seq int) { c.Page = seq }

// Topic is a first-tier topic outline
type Topic struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	CategoryID int64     `json:"category_id" gorm:"index"`
	Title      string    `json:"title"`
	ShortTitle string    `json:"short_title"`
	Seq        int       `json:"seq"`
	Icon       string    `json:"icon"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Topic) TableName() string      { return "topics" }
func (t *Topic) EntityID() int64     { return t.ID }
func (t *Topic) Position() int       { return t.Seq }
func (t *Topic) SetPosition(seq int) { t.Seq = seq }

// TopicCategory is a chapter node of a first-tier topic
type TopicCategory struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	TopicsID  int64     `json:"topics_id" gorm:"column:topics_id;index"`
	ParentID  *int64    `json:"parent_id" gorm:"index"`
	Title     string    `json:"title"`
	Seq       int       `json:"seq"`
	HaveChild bool      `json:"have_child"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TopicCategory) TableName() string      { return "topics_category" }
func (c *TopicCategory) EntityID() int64     { return c.ID }
func (c *TopicCategory) Position() int       { return c.Seq }
func (c *TopicCategory) SetPosition(seq int) { c.Seq = seq }

// TopicContent links an audio or video into a topic chapter
type TopicContent struct {
	ID               int64     `json:"id" gorm:"primaryKey"`
	TopicsCategoryID int64     `json:"topics_category_id" gorm:"column:topics_category_id;index"`
	Type             string    `json:"type"`
	IDHeader         int64     `json:"id_header" gorm:"column:id_header"`
	Seq              int       `json:"seq"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (TopicContent) TableName() string      { return "topics_content" }
func (c *TopicContent) EntityID() int64     { return c.ID }
func (c *TopicContent) Position() int       { return c.Seq }
func (c *TopicContent) SetPosition(seq int) { c.Seq = seq }

// Topic2 is a second-tier topic under a book category
type Topic2 struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	BookCategoryID int64      `json:"book_category_id" gorm:"index"`
	Title          string     `json:"title"`
	Synopsis       string     `json:"synopsis"`
	Seq            int        `json:"seq"`
	Date           *time.Time `json:"date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Topic2) TableName() string      { return "topics2" }
func (t *Topic2) EntityID() int64     { return t.ID }
func (t *Topic2) Position() int       { return t.Seq }
func (t *Topic2) SetPosition(seq int) { t.Seq = seq }

// Topic2Chapter is a chapter node of a second-tier topic
type Topic2Chapter struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Topics2ID   int64     `json:"topics2_id" gorm:"column:topics2_id;index"`
	ParentID    *int64    `json:"parent_id" gorm:"index"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Seq         int       `json:"seq"`
	HaveChild   bool      `json:"have_child"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Topic2Chapter) TableName() string      { return "topics2_chapters" }
func (c *Topic2Chapter) EntityID() int64     { return c.ID }
func (c *Topic2Chapter) Position() int       { return c.Seq }
func (c *Topic2Chapter) SetPosition(seq int) { c.Seq = seq }

// Topic2Content is one page of a second-tier chapter
type Topic2Content struct {
	ID                int64     `json:"id" gorm:"primaryKey"`
	Topics2ChaptersID int64     `json:"topics2_chapters_id" gorm:"column:topics2_chapters_id;index"`
	Content           string    `json:"content"`
	Page              int       `json:"page"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Topic2Content) TableName() string      { return "topics2_contents" }
func (c *Topic2Content) EntityID() int64     { return c.ID }
func (c *Topic2Content) Position() int       { return c.Page }
func (c *Topic2Content) SetPosition(seq int) { c.Page = seq }

// Topic3 is a third-tier topic under a book category
type Topic3 struct {
	ID             int64      `json:"id" gorm:"primaryKey"`
	BookCategoryID int64      `json:"book_category_id" gorm:"index"`
	Title          string     `json:"title"`
	Synopsis       string     `json:"synopsis"`
	Seq            int        `json:"seq"`
	Date           *time.Time `json:"date"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Topic3) TableName() string      { return "topics3" }
func (t *Topic3) EntityID() int64     { return t.ID }
func (t *Topic3) Position() int       { return t.Seq }
func (t *Topic3) SetPosition(seq int) { t.Seq = seq }

// Topic3Chapter is a chapter node of a third-tier topic
type Topic3Chapter struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Topics3ID   int64     `json:"topics3_id" gorm:"column:topics3_id;index"`
	ParentID    *int64    `json:"parent_id" gorm:"index"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Seq         int       `json:"seq"`
	HaveChild   bool      `json:"have_child"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Topic3Chapter) TableName() string      { return "topics3_chapters" }
func (c *Topic3Chapter) EntityID() int64     { return c.ID }
func (c *Topic3Chapter) Position() int       { return c.Seq }
func (c *Topic3Chapter) SetPosition(seq int) { c.Seq = seq }

// Topic3Content is one page of a third-tier chapter
type Topic3Content struct {
	ID                int64     `json:"id" gorm:"primaryKey"`
	Topics3ChaptersID int64     `json:"topics3_chapters_id" gorm:"column:topics3_chapters_id;index"`
	CategoryID        *int64    `json:"category_id"`
	Content           string    `json:"content"`
	Page              int       `json:"page"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Topic3Content) TableName() string      { return "topics3_contents" }
func (c *Topic3Content) EntityID() int64     { return c.ID }
func (c *Topic3Content) Position() int       { return c.Page }
func (c *Topic3Content) SetPosition(seq int) { c.Page = seq }

// Topic3ContentCategory labels third-tier pages. There is one global list of
// them, ordered by seq.
type Topic3ContentCategory struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Seq         int       `json:"seq"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Topic3ContentCategory) TableName() string      { return "topics3_content_category" }
func (c *Topic3ContentCategory) EntityID() int64     { return c.ID }
func (c *Topic3ContentCategory) Position() int       { return c.Seq }
func (c *Topic3ContentCategory) SetPosition(seq int) { c.Seq = seq }

// VideoCategory is a node of the video tree. Root nodes hang off a
// category through SubCategoryID.
type VideoCategory struct {
	ID            int64     `json:"id" gorm:"primaryKey"`
	ParentID      *int64    `json:"parent_id" gorm:"index"`
	CategoryID    *int64    `json:"category_id"`
	SubCategoryID *int64    `json:"sub_category_id" gorm:"index"`
	Title         string    `json:"title"`
	Seq           int       `json:"seq"`
	IsParent      bool      `json:"is_parent"`
	TranslateID   *int64    `json:"translate_id" gorm:"column:translate_id"`
	TranslateCH   *int64    `json:"translate_ch" gorm:"column:translate_ch"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (VideoCategory) TableName() string      { return "video_category" }
func (c *VideoCategory) EntityID() int64     { return c.ID }
func (c *VideoCategory) Position() int       { return c.Seq }
func (c *VideoCategory) SetPosition(seq int) { c.Seq = seq }

// VideoSubGroup groups the episodes of a main video
type VideoSubGroup struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	VideoID   int64     `json:"video_id" gorm:"index"`
	Name      string    `json:"name"`
	Seq       int       `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (VideoSubGroup) TableName() string      { return "video_sub_group" }
func (g *VideoSubGroup) EntityID() int64     { return g.ID }
func (g *VideoSubGroup) Position() int       { return g.Seq }
func (g *VideoSubGroup) SetPosition(seq int) { g.Seq = seq }

// Video is either a category-level video or an episode inside a sub group
type Video struct {
	ID              int64      `json:"id" gorm:"primaryKey"`
	ParentID        *int64     `json:"parent_id" gorm:"index"`
	VideoCategoryID *int64     `json:"video_category_id" gorm:"index"`
	VideoSubGroupID *int64     `json:"video_sub_group_id" gorm:"index"`
	LocationID      *int64     `json:"location_id"`
	Title           string     `json:"title"`
	Synopsis        string     `json:"synopsis"`
	URL             string     `json:"url" gorm:"column:url"`
	URLAudio        string     `json:"url_audio" gorm:"column:url_audio"`
	Seq             int        `json:"seq"`
	Date            *time.Time `json:"date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Video) TableName() string      { return "video" }
func (v *Video) EntityID() int64     { return v.ID }
func (v *Video) Position() int       { return v.Seq }
func (v *Video) SetPosition(seq int) { v.Seq = seq }

// Playlist item types
const (
	PlaylistItemAudio  = 1
	PlaylistItemVideo  = 2
	PlaylistItemBook   = 3
	PlaylistItemTopic1 = 4
	PlaylistItemTopic2 = 5
)

// CommunityPlaylistItem is one entry of a user playlist
type CommunityPlaylistItem struct {
	ID                  int64          `json:"id" gorm:"primaryKey"`
	CommunityPlaylistID int64          `json:"community_playlist_id" gorm:"index"`
	Type                int            `json:"type"`
	ItemID              int64          `json:"item_id"`
	Data                datatypes.JSON `json:"data"`
	Seq                 int            `json:"seq"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (CommunityPlaylistItem) TableName() string      { return "community_playlist_items" }
func (i *CommunityPlaylistItem) EntityID() int64     { return i.ID }
func (i *CommunityPlaylistItem) Position() int       { return i.Seq }
func (i *CommunityPlaylistItem) SetPosition(seq int) { i.Seq = seq }

// ScopeListing is the published, ordered member list of one scope.
// UpdatedAt is unix milliseconds.
type ScopeListing struct {
	Key       string         `json:"key" reindex:"key,,pk"`
	Family    string         `json:"family" reindex:"family"`
	Table     string         `json:"table" reindex:"table"`
	Items     []ListingEntry `json:"items"`
	UpdatedAt int64          `json:"updated_at" reindex:"updated_at"`
}

// ListingEntry is one member of a published listing
type ListingEntry struct {
	ID  int64 `json:"id"`
	Seq int   `json:"seq"`
}

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedListings represents a paginated result
type PaginatedListings struct {
	Items   []*ScopeListing
	Total   int
	Limit   int
	Offset  int
	HasMore bool
}
