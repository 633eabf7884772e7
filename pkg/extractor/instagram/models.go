package instagram

// postResponse is the top-level payload of the post JSON endpoint.
type postResponse struct {
	RequiresToLogin bool     `json:"requires_to_login"`
	Graphql         *graphql `json:"graphql"`
	Data            *graphql `json:"data"`
	Status          string   `json:"status"`
}

type graphql struct {
	ShortcodeMedia *shortcodeMedia `json:"shortcode_media"`
	XDTMedia       *shortcodeMedia `json:"xdt_shortcode_media"`
}

// shortcodeMedia is a single post: one image, one video, or a sidecar
// carousel of children.
type shortcodeMedia struct {
	Typename         string            `json:"__typename"`
	ID               string            `json:"id"`
	Shortcode        string            `json:"shortcode"`
	DisplayURL       string            `json:"display_url"`
	DisplayResources []displayResource `json:"display_resources"`
	IsVideo          bool              `json:"is_video"`
	TakenAtTimestamp int64             `json:"taken_at_timestamp"`
	Dimensions       dimensions        `json:"dimensions"`
	Owner            owner             `json:"owner"`
	Caption          captionEdges      `json:"edge_media_to_caption"`
	SidecarChildren  *sidecarEdges     `json:"edge_sidecar_to_children"`
}

type displayResource struct {
	Src          string `json:"src"`
	ConfigWidth  int    `json:"config_width"`
	ConfigHeight int    `json:"config_height"`
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type owner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type captionEdges struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

type sidecarEdges struct {
	Edges []struct {
		Node shortcodeMedia `json:"node"`
	} `json:"edges"`
}

// media returns whichever wrapper the endpoint used.
func (r *postResponse) media() *shortcodeMedia {
	for _, g := range []*graphql{r.Graphql, r.Data} {
		if g == nil {
			continue
		}
		if g.ShortcodeMedia != nil {
			return g.ShortcodeMedia
		}
		if g.XDTMedia != nil {
			return g.XDTMedia
		}
	}
	return nil
}

func (m *shortcodeMedia) caption() string {
	if len(m.Caption.Edges) == 0 {
		return ""
	}
	return m.Caption.Edges[0].Node.Text
}
