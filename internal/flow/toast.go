package flow

// Variant selects how a toast is rendered.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a user-visible notification.
type Toast struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Variant     Variant `json:"variant"`
}

// Notifier receives every toast a flow raises.
type Notifier interface {
	Notify(t Toast)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Toast)

func (f NotifierFunc) Notify(t Toast) { f(t) }

func success(title, description string) Toast {
	return Toast{Title: title, Description: description, Variant: VariantDefault}
}

func failure(title, description string) Toast {
	return Toast{Title: title, Description: description, Variant: VariantDestructive}
}
