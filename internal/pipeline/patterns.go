package pipeline

// Field is a semantic slot of the sender profile that can be mapped onto a
// form control.
type Field string

const (
	FieldFirstName Field = "first_name"
	FieldLastName  Field = "last_name"
	FieldFullName  Field = "full_name"
	FieldEmail     Field = "email"
	FieldPhone     Field = "phone"
	FieldCompany   Field = "company"
	FieldJobTitle  Field = "job_title"
	FieldSubject   Field = "subject"
	FieldWebsite   Field = "website"
	FieldMessage   Field = "message"
)

// fieldSelectors lists, per semantic field, the CSS selectors tried in order
// against a discovered form. First visible match wins; a field with no match
// is skipped without failing the attempt.
var fieldSelectors = map[Field][]string{
	FieldFirstName: {
		`input[name*="first" i]`,
		`input[id*="first" i]`,
		`input[placeholder*="first name" i]`,
		`input[autocomplete="given-name"]`,
	},
	FieldLastName: {
		`input[name*="last" i]`,
		`input[id*="last" i]`,
		`input[name*="surname" i]`,
		`input[placeholder*="last name" i]`,
		`input[autocomplete="family-name"]`,
	},
	FieldFullName: {
		`input[name="name"]`,
		`input[name*="full" i][name*="name" i]`,
		`input[id="name"]`,
		`input[name*="your-name" i]`,
		`input[placeholder*="your name" i]`,
		`input[placeholder*="name" i]`,
		`input[autocomplete="name"]`,
	},
	FieldEmail: {
		`input[type="email"]`,
		`input[name*="email" i]`,
		`input[id*="email" i]`,
		`input[placeholder*="email" i]`,
	},
	FieldPhone: {
		`input[type="tel"]`,
		`input[name*="phone" i]`,
		`input[name*="tel" i]`,
		`input[id*="phone" i]`,
		`input[placeholder*="phone" i]`,
	},
	FieldCompany: {
		`input[name*="company" i]`,
		`input[name*="organization" i]`,
		`input[id*="company" i]`,
		`input[placeholder*="company" i]`,
	},
	FieldJobTitle: {
		`input[name*="job" i][name*="title" i]`,
		`input[name*="jobtitle" i]`,
		`input[name*="position" i]`,
		`input[placeholder*="job title" i]`,
		`input[autocomplete="organization-title"]`,
	},
	FieldSubject: {
		`input[name*="subject" i]`,
		`input[id*="subject" i]`,
		`input[placeholder*="subject" i]`,
	},
	FieldWebsite: {
		`input[type="url"]`,
		`input[name*="website" i]`,
		`input[name*="url" i]`,
		`input[placeholder*="website" i]`,
	},
	FieldMessage: {
		`textarea[name*="message" i]`,
		`textarea[name*="comment" i]`,
		`textarea[name*="enquiry" i]`,
		`textarea[name*="inquiry" i]`,
		`textarea[id*="message" i]`,
		`textarea`,
	},
}

// fillOrder fixes the mapping sequence. Name parts run before the catch-all
// full-name pattern so a split-name form never double-claims an input.
var fillOrder = []Field{
	FieldFirstName,
	FieldLastName,
	FieldFullName,
	FieldEmail,
	FieldPhone,
	FieldCompany,
	FieldJobTitle,
	FieldSubject,
	FieldWebsite,
	FieldMessage,
}

// submitSelectors is the ordered chain of submit control candidates.
var submitSelectors = []string{
	`button[type="submit"]`,
	`input[type="submit"]`,
	`button[name*="submit" i]`,
	`button[id*="submit" i]`,
	`button[class*="submit" i]`,
	`input[type="image"]`,
	`button`,
}

// contactVocabulary scores anchors and headings while hunting for the
// contact surface of a site.
var contactVocabulary = []string{
	"contact",
	"contact us",
	"contact-us",
	"get in touch",
	"reach us",
	"kontakt",
	"contacto",
	"enquiry",
	"inquiry",
	"support",
	"write to us",
}
