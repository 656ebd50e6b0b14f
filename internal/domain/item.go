package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item lives in the external metadata service; only the fields the engines
// consume are modelled here.
const (
	ItemTypeFile       = "file"
	ItemTypeFolder     = "folder"
	ItemTypeNameFolder = "name_folder"

	ContainerTypeDataset = "dataset"
	ContainerTypeProject = "project"
)

type ItemStorage struct {
	ID          uuid.UUID `json:"id"`
	LocationURI string    `json:"location_uri"`
	Version     string    `json:"version"`
}

type Item struct {
	ID            uuid.UUID  `json:"id"`
	ParentID      *uuid.UUID `json:"parent"`
	ParentPath    string     `json:"parent_path"` // dotted, e.g. "data.folder1"
	Type          string     `json:"type"`
	Zone          int        `json:"zone"`
	Name          string     `json:"name"`
	Size          int64      `json:"size"`
	Owner         string     `json:"owner"`
	ContainerCode string     `json:"container_code"`
	ContainerType string     `json:"container_type"`
	Archived      bool       `json:"archived"`
	Storage       ItemStorage `json:"storage"`

	CreatedTime     time.Time `json:"created_time"`
	LastUpdatedTime time.Time `json:"last_updated_time"`
}

func (i *Item) IsFile() bool   { return i.Type == ItemTypeFile }
func (i *Item) IsFolder() bool { return i.Type == ItemTypeFolder || i.Type == ItemTypeNameFolder }

// DisplayPath is the slash-joined path of the item inside its container,
// including its own name. Metadata keeps parent paths dotted; object keys
// are slash separated.
func (i *Item) DisplayPath() string {
	if i.ParentPath == "" {
		return i.Name
	}
	return strings.ReplaceAll(i.ParentPath, ".", "/") + "/" + i.Name
}

// ObjectKey of the item inside its container bucket.
func (i *Item) ObjectKey() string { return i.DisplayPath() }

// DottedChildPath is the metadata parent_path for children of this item.
func (i *Item) DottedChildPath() string {
	if i.ParentPath == "" {
		return i.Name
	}
	return i.ParentPath + "." + i.Name
}
