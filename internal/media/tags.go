package media

import (
	"io"
	"net/http"

	"github.com/bogem/id3v2/v2"
	"github.com/dhowden/tag"
)

// Tags is the in-memory representation of MP3 metadata shared by the
// extract and write operations.
type Tags struct {
	Title       string
	Artist      string
	Album       string
	Grouping    string
	Artwork     []byte
	ArtworkMIME string
}

// ExtractTags parses embedded tags from arbitrary audio bytes. Bytes that
// are not a tagged container, or simply carry no tags, yield empty Tags;
// untagged files are an expected case, not a fault.
func ExtractTags(r io.ReadSeeker) (t *Tags) {
	t = &Tags{}

	// The tag parser can panic on truncated containers.
	defer func() {
		if recover() != nil {
			t = &Tags{}
		}
	}()

	m, err := tag.ReadFrom(r)
	if err != nil {
		return t
	}

	t.Title = m.Title()
	t.Artist = m.Artist()
	t.Album = m.Album()
	t.Grouping = rawGrouping(m)

	if pic := m.Picture(); pic != nil {
		t.Artwork = pic.Data
		t.ArtworkMIME = pic.MIMEType
	}

	return t
}

// rawGrouping digs the content-group frame out of the raw tag map; the
// frame id differs per container format.
func rawGrouping(m tag.Metadata) string {
	for _, key := range []string{"TIT1", "GRP1", "\xa9grp", "grouping"} {
		if v, ok := m.Raw()[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// WriteTags embeds the metadata block into the MP3 at path, replacing any
// pre-existing tags. Artwork may be absent or raw JPEG/PNG bytes.
func WriteTags(path string, t *Tags) error {
	id3Tag, err := id3v2.Open(path, id3v2.Options{Parse: false})
	if err != nil {
		return err
	}
	defer id3Tag.Close()

	id3Tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	id3Tag.SetTitle(t.Title)
	id3Tag.SetArtist(t.Artist)
	if t.Album != "" {
		id3Tag.SetAlbum(t.Album)
	}
	if t.Grouping != "" {
		id3Tag.AddTextFrame(id3Tag.CommonID("Content group description"), id3Tag.DefaultEncoding(), t.Grouping)
	}

	if len(t.Artwork) > 0 {
		mime := t.ArtworkMIME
		if mime == "" {
			mime = http.DetectContentType(t.Artwork)
		}
		id3Tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    mime,
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     t.Artwork,
		})
	}

	return id3Tag.Save()
}
