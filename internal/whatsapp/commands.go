package whatsapp

import (
	"fmt"
	"strings"
)

// ReplyContext is what a reply template may draw on.
type ReplyContext struct {
	ContactName string
	StoreURL    string
	Type        MessageType
}

// Command maps a set of exact, lower-case phrases to one reply.
type Command struct {
	Name     string
	Keywords []string
	Reply    func(ReplyContext) string
}

// Commands is an ordered table; the first command owning a phrase wins.
type Commands []Command

// DefaultCommands is the storefront bot's command set.
var DefaultCommands = Commands{
	{
		Name:     "start",
		Keywords: []string{"/start", "привіт", "hello"},
		Reply: func(rc ReplyContext) string {
			return fmt.Sprintf("Привіт, %s! 👋\n\nЯ бот магазину FullMag. Чим можу допомогти?\n\n"+
				"Команди:\n"+
				"/catalog - переглянути каталог\n"+
				"/orders - мої замовлення\n"+
				"/help - допомога", rc.ContactName)
		},
	},
	{
		Name:     "help",
		Keywords: []string{"/help", "допомога"},
		Reply: func(ReplyContext) string {
			return "📚 Допомога\n\n" +
				"Доступні команди:\n" +
				"/catalog - переглянути каталог товарів\n" +
				"/orders - переглянути ваші замовлення\n" +
				"/help - показати цю довідку\n\n" +
				"Або просто напишіть своє питання, і ми відповімо!"
		},
	},
	{
		Name:     "catalog",
		Keywords: []string{"/catalog", "каталог"},
		Reply: func(rc ReplyContext) string {
			return fmt.Sprintf("🛍️ Наш каталог доступний на сайті:\n%s\n\n"+
				"Там ви можете переглянути всі товари та оформити замовлення.", rc.StoreURL)
		},
	},
	{
		Name:     "orders",
		Keywords: []string{"/orders", "замовлення"},
		Reply: func(rc ReplyContext) string {
			return fmt.Sprintf("📦 Щоб переглянути ваші замовлення, будь ласка, увійдіть на сайт:\n%s/profile/orders", rc.StoreURL)
		},
	},
}

const (
	fallbackCommand = "fallback"
	mediaCommand    = "media"
)

func fallbackReply(ReplyContext) string {
	return "Дякую за повідомлення! 📨\n\n" +
		"Наш менеджер відповість вам найближчим часом.\n\n" +
		"Для швидкої допомоги використовуйте команду /help"
}

var mediaKinds = map[MessageType]string{
	TypeImage:    "зображення",
	TypeDocument: "документ",
	TypeAudio:    "аудіоповідомлення",
	TypeVideo:    "відео",
	TypeLocation: "місцезнаходження",
	TypeContacts: "контакт",
	TypeSticker:  "стікер",
}

func mediaReply(rc ReplyContext) string {
	kind, ok := mediaKinds[rc.Type]
	if !ok {
		kind = "повідомлення"
	}
	return fmt.Sprintf("Дякую! Я отримав ваше %s. 👍\n\nНаш менеджер перегляне його та відповість вам.", kind)
}

// Match returns the command owning text, compared case-insensitively after
// trimming. Unknown text yields the fallback command.
func (c Commands) Match(text string) Command {
	phrase := strings.ToLower(strings.TrimSpace(text))
	for _, cmd := range c {
		for _, kw := range cmd.Keywords {
			if phrase == kw {
				return cmd
			}
		}
	}
	return Command{Name: fallbackCommand, Reply: fallbackReply}
}

// Select picks the reply for an inbound message. Every message gets exactly
// one command.
func (c Commands) Select(msg InboundMessage) Command {
	if msg.Type == TypeText && msg.Text != nil && msg.Text.Body != "" {
		return c.Match(msg.Text.Body)
	}
	return Command{Name: mediaCommand, Reply: mediaReply}
}
