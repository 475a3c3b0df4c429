package models

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// TierFromPremium maps the wire-level premium flag to a tier.
func TierFromPremium(premium bool) Tier {
	if premium {
		return TierPremium
	}
	return TierFree
}

type StyleTag string

const (
	StyleRealistic StyleTag = "realistic"
	StyleAnime     StyleTag = "anime"
	StyleGhibli    StyleTag = "ghibli"
	StyleNintendo  StyleTag = "nintendo"
	StyleLego      StyleTag = "lego"
	StyleSouthPark StyleTag = "southpark"
	StylePixar     StyleTag = "pixar"
)

// Styles lists every supported style in display order.
var Styles = []StyleTag{StyleRealistic, StyleAnime, StyleGhibli, StyleNintendo, StyleLego, StyleSouthPark, StylePixar}

// ParseStyle never fails: unknown or empty values resolve to realistic.
func ParseStyle(raw string) StyleTag {
	s := StyleTag(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Styles {
		if s == known {
			return s
		}
	}
	return StyleRealistic
}

// Label is the human readable style name.
func (s StyleTag) Label() string {
	switch s {
	case StyleSouthPark:
		return "South Park"
	case "":
		return "Realistic"
	default:
		return strings.ToUpper(string(s[:1])) + string(s[1:])
	}
}

type AspectRatioTag string

const (
	AspectLandscape AspectRatioTag = "landscape"
	AspectPortrait  AspectRatioTag = "portrait"
	AspectSquare    AspectRatioTag = "square"
)

// ParseAspectRatio defaults to landscape for anything it does not recognise.
func ParseAspectRatio(raw string) AspectRatioTag {
	switch a := AspectRatioTag(strings.ToLower(strings.TrimSpace(raw))); a {
	case AspectPortrait, AspectSquare:
		return a
	default:
		return AspectLandscape
	}
}

type GenerationRequest struct {
	CharacterName string
	Style         StyleTag
	AspectRatio   AspectRatioTag
	Tier          Tier
}

type EnrichedPrompt struct {
	Text string
}

type ImageKind int

const (
	ImageKindURL ImageKind = iota + 1
	ImageKindInline
)

// ImageRef is either a URL or inline image bytes with their MIME type.
type ImageRef struct {
	Kind     ImageKind
	URL      string
	Data     []byte
	MimeType string
}

func URLImage(u string) ImageRef {
	return ImageRef{Kind: ImageKindURL, URL: u}
}

func InlineImage(data []byte, mimeType string) ImageRef {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return ImageRef{Kind: ImageKindInline, Data: data, MimeType: mimeType}
}

func (r ImageRef) IsInline() bool {
	return r.Kind == ImageKindInline
}

// String renders the reference for the wire: a URL or a data URI.
func (r ImageRef) String() string {
	if r.IsInline() {
		return "data:" + r.MimeType + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
	}
	return r.URL
}

// ParseImageRef resolves a provider or wire value into a reference.
// Data URIs become inline images; everything else is treated as a URL.
func ParseImageRef(raw string) (ImageRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ImageRef{}, fmt.Errorf("empty image reference")
	}
	if !strings.HasPrefix(raw, "data:") {
		return URLImage(raw), nil
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return ImageRef{}, fmt.Errorf("malformed data uri")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return ImageRef{}, fmt.Errorf("data uri is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ImageRef{}, fmt.Errorf("decode data uri: %w", err)
	}
	return InlineImage(data, mime), nil
}

type GenerationResult struct {
	ID            string
	Images        []ImageRef
	Tier          Tier
	Style         StyleTag
	AspectRatio   AspectRatioTag
	CharacterName string
	Model         string
	Prompt        string
}

// GenerationLog is the record forwarded to the logging store after a successful generation.
type GenerationLog struct {
	ID           string
	Character    string
	Prompt       string
	Tier         Tier
	Ratio        string
	Style        StyleTag
	ImageURL     string
	ContactEmail string
	Model        string
	CreatedAt    time.Time
}
