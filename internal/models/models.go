package models

// CategoryDefinition is one entry of the category registry. Definitions are
// immutable after creation; the active and archive groups are created as a
// pair and are always distinct.
type CategoryDefinition struct {
	Name           string `json:"name"`
	GroupID        string `json:"groupId"`
	Emoji          string `json:"emoji,omitempty"`
	ArchiveGroupID string `json:"archiveGroupId"`
}

// Settings is the whole settings document as persisted on disk.
type Settings struct {
	Credentials      Credentials                   `json:"credentials"`
	WorkspaceID      string                        `json:"workspaceId"`
	ModeratorRoleID  string                        `json:"moderatorRoleId,omitempty"`
	TicketNamePrefix string                        `json:"ticketNamePrefix"`
	Categories       map[string]CategoryDefinition `json:"categories"`
	CategoryOrder    []string                      `json:"categoryOrder,omitempty"`
}

type Credentials struct {
	Token string `json:"token,omitempty"`
}

// ArchiveGroupIDs collects the archive group of every registered category.
func (s Settings) ArchiveGroupIDs() map[string]bool {
	out := make(map[string]bool, len(s.Categories))
	for _, def := range s.Categories {
		if def.ArchiveGroupID != "" {
			out[def.ArchiveGroupID] = true
		}
	}
	return out
}

// OrderedKeys returns category keys in registration order. Keys present in
// the map but missing from the order index (hand-edited documents) are
// appended after the ordered ones.
func (s Settings) OrderedKeys() []string {
	seen := make(map[string]bool, len(s.CategoryOrder))
	out := make([]string, 0, len(s.Categories))
	for _, k := range s.CategoryOrder {
		if _, ok := s.Categories[k]; ok && !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	for k := range s.Categories {
		if !seen[k] {
			out = append(out, k)
		}
	}
	return out
}

// TicketRecord is one entry of the ticket index, keyed by channel id.
type TicketRecord struct {
	UserID      string `json:"userId"`
	CategoryKey string `json:"categoryKey"`
}

// PermissionEffect is one ordered (principal, allow, deny) tuple applied to a
// channel or group. The gateway translates it to platform overwrites; the
// core never sees platform permission bits.
type PermissionEffect struct {
	Principal Principal `json:"principal"`
	Allow     []string  `json:"allow,omitempty"`
	Deny      []string  `json:"deny,omitempty"`
}

type Principal struct {
	Type string `json:"type"` // everyone, user, role, self
	ID   string `json:"id,omitempty"`
}

const (
	PrincipalEveryone = "everyone"
	PrincipalUser     = "user"
	PrincipalRole     = "role"
	PrincipalSelf     = "self"
)

// Permission names understood by the gateway.
const (
	PermView           = "view"
	PermRead           = "read"
	PermSend           = "send"
	PermAttach         = "attach"
	PermEmbed          = "embed"
	PermManageMessages = "manage_messages"
	PermManageChannel  = "manage_channel"
)

// ChannelMetadata is carried on channel creation (topic line and audit reason).
type ChannelMetadata struct {
	Topic  string `json:"topic,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Attachment describes an incoming attachment as reported by the gateway.
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// FileUpload is raw content re-uploaded into a channel.
type FileUpload struct {
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// Outbound is a message sent through the gateway, to a channel or to a user's
// private stream.
type Outbound struct {
	Text     string       `json:"text,omitempty"`
	Author   string       `json:"author,omitempty"`
	ImageURL string       `json:"imageUrl,omitempty"`
	Fields   []Field      `json:"fields,omitempty"`
	Files    []FileUpload `json:"files,omitempty"`
	// ButtonLabel asks the gateway to attach a persistent open-ticket button.
	ButtonLabel string `json:"buttonLabel,omitempty"`
	// TTLSeconds > 0 asks the gateway to delete the message after the given
	// number of seconds (transient warnings).
	TTLSeconds int `json:"ttlSeconds,omitempty"`
}

type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ChannelMessageEvent is an inbound message posted in a workspace channel.
// AuthorIsBot is set by the gateway for messages authored by this system or
// by any automated integration; those never feed the relay, or every welcome
// and mirrored message would loop back as a fresh delivery.
type ChannelMessageEvent struct {
	MessageID   string       `json:"message_id"`
	ChannelID   string       `json:"channel_id"`
	AuthorID    string       `json:"author_id"`
	AuthorName  string       `json:"author_name"`
	AuthorIsBot bool         `json:"author_is_bot"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}

// DirectMessageEvent is an inbound message from a user's private stream.
type DirectMessageEvent struct {
	MessageID   string       `json:"message_id"`
	UserID      string       `json:"user_id"`
	UserName    string       `json:"user_name"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
}
