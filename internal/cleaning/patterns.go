package cleaning

import (
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

const (
	ciml = regexp2.IgnoreCase | regexp2.Multiline
	ml   = regexp2.Multiline
	none = regexp2.None
)

// ruleSpec is the uncompiled form of a Rule
type ruleSpec struct {
	name        string
	expr        string
	replacement string
	opts        regexp2.RegexOptions
}

// patternLibrary holds every pattern table of the pipeline, in application order
type patternLibrary struct {
	replies           []ruleSpec
	greetings         []ruleSpec
	whitespace        []ruleSpec
	metadata          []ruleSpec
	signatures        []ruleSpec
	fixedTerms        []ruleSpec
	files             []ruleSpec
	addresses         []ruleSpec
	redundantNewlines []ruleSpec
	strictNewline     []ruleSpec
	looseNewline      []ruleSpec
	spaces            []ruleSpec

	names      ruleSpec
	urlSimple  ruleSpec
	urlComplex ruleSpec
	senders    ruleSpec
	mailboxes  ruleSpec
}

// stopWords are dropped by exact, case-sensitive token match. "may" is left out on purpose.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`folks hi hello dear sincerely friends please tnx thanks fw re fwd
		january jan february feb march mar april apr june jun july jul august aug september sep
		october oct november nov december dec sunday monday tuesday wednesday thursday friday
		saturday pm am est today tomorrow yesterday`) {
		stopWords[w] = struct{}{}
	}
}

var wordRe = regexp.MustCompile(`[A-Za-z]+`)

// orgAlternation turns organization names into escaped regex alternatives
func orgAlternation(orgs []string) []string {
	alts := make([]string, 0, len(orgs))
	for _, org := range orgs {
		if org = strings.TrimSpace(org); org != "" {
			alts = append(alts, regexp2.Escape(org))
		}
	}
	return alts
}

// orgTerm matches an organization name with any punctuation between its words
func orgTerm(org string) string {
	words := wordRe.FindAllString(org, -1)
	if len(words) == 0 {
		return ""
	}
	return `\b` + strings.Join(words, `[\s&,.]+`) + `\b`
}

// placeholderGuard keeps address rules from starting inside a word or on a placeholder
const placeholderGuard = `(?<![A-Za-z0-9_])(?!ANONYMIZED_)`

// orgToken is the first label of the internal domain, used by directory style addresses
func orgToken(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if i := strings.IndexByte(domain, '.'); i > 0 {
		domain = domain[:i]
	}
	if domain == "" {
		return `(?!)`
	}
	return regexp2.Escape(domain)
}

func alternation(items ...[]string) string {
	var all []string
	for _, list := range items {
		all = append(all, list...)
	}
	return "(" + strings.Join(all, "|") + ")"
}

// buildPatterns assembles the pattern library for one organization
func buildPatterns(internalDomain string, orgs []string) patternLibrary {
	org := orgAlternation(orgs)

	lib := patternLibrary{}

	lib.replies = []ruleSpec{
		{"wrote_anchor", `On.*?wrote:[\s\S]*`, "", ciml},
		{"schrieb_anchor", `am.*?schrieb\b[^\n]*?:[\s\S]*`, "", ciml},
		{"ecrit_anchor", `Le.*?écrit:[\s\S]*`, "", ciml},
		{"data_anchor", `Data:[\s\S]*`, "", ciml},
		{"datum_anchor", `Datum:[\s\S]*`, "", ciml},
		{"sent_anchor", `Sent:[\s\S]*`, "", ciml},
		{"from_anchor", `From:[\s\S]*`, "", ciml},
		{"de_anchor", `De:[\s\S]*`, "", ciml},
		{"sent_from_device", `Sent from (my\s)?((blackberry)|(iphone)|(samsung)|(macbook)|(apple)|(pc))[\s\S]*`, "", ciml},
		{"von_meinem_device", `Von meinem ((blackberry)|(iphone)|(samsung)|(macbook)|(apple)|(pc))[\s\S]*`, "", ciml},
		{"subject_anchor", `Subject:[\s\S]*`, "", ciml},
		{"timestamp_anchor", `\d{2}/\d{2}/\d{4}\s\d{2}[\s\S]*`, "", ciml},
		{"box_bar", `│.*`, "", ciml},
		{"sign_off", alternation(org, []string{
			"Cheers", "Sincerely", "Many thanks", "Best Regards", "kind regards", "Regards",
			"Warm regards", "Assistant", "Assistant:", "Executive Assistant:",
		}) + `[\s\S]*`, " ", ciml},
	}

	lib.greetings = []ruleSpec{
		{"greeting_line", `^(Folks|All|Hej|hey|hi|hello|good|dear|friends|team|Good day|Greetings)(\s|,|\.|\n|\!)(([a-z]{3,20}\s?\/?){0,3})(\.|-|,|;|\s)?(\\n)?\n\n`, "", ciml},
	}

	lib.whitespace = []ruleSpec{
		{"double_spaces", ` {2,}`, " ", ciml},
		{"divider_lines", `^[^\nA-Za-z0-9]*[^\nA-Za-z0-9]$`, "", ciml},
		{"quote_markers", `^(\t|>?)+`, "", ciml},
		{"leading_spaces", `^[^\n]\s+[^\S]`, "\n", ciml},
		{"blank_line_runs", `(\s*[\n]\s*){3,30}`, "\n\n", ciml},
		{"nested_quotes", `\n{1}>[>\s]+`, "\n", ciml},
	}

	lib.metadata = []ruleSpec{
		{"to_subject_block", `To: [0-9a-zA-Z_:@.;<>\s\w-]+Subject:\s*`, " ", ciml},
		{"forwarded_block", `----- Forwarded (by)?.+(\n.*)?\s(-----|\d\d\:\d\d\s((P|A)M)?)`, " ", ciml},
		{"key_value_line", `^(user|owner|Timezone|FMNO|name|ip|date|time|path|agent|Code|Domain|address|room|Location|Team|Responder|Contact|Office|Telefono|Tel|fax|Mobile|Call Number|cell|callback|direct|voip|Attn|Colleague|phone|Department|Telephone|RSA|Organization|Country|Group|Email|Assistant|EA|Region|Database|view|Tracking|Server|Hours|Reference\s?\#|Created|t|e|m|f)\s*?:.*?$`, " ", ciml},
		{"prefixed_key_value_line", `^[a-z0-9]+\s(name|ip|date|time|path|agent|Code|Domain)[a-z0-9]*\s*?:.*?$`, " ", ciml},
		{"out_of_office", `AUTO:.+out of(\sthe)? office.*(\n.+)*`, "", ciml},
		{"pipe_row", `^.*?\|.*?$`, " ", ciml},
		{"numeric_tail", `[-_+;:.,\s]+[0-9]+[0-9_+;:.,\s-]*(?:$|\n)`, "\n", ciml},
		{"on_at_wrote", `On [0-9a-zA-Z.\s]+ at [0-9]+\:[0-9]{2} [a-zA-Z0-9@_.\s<]+>\s+wrote:`, " ", ml},
		{"am_um_schrieb", `Am [0-9a-zA-Z./\s-]+ um [0-9]+\:[0-9]{2} schrieb\s+[a-zA-Z0-9@_.\s<]+>:`, " ", ml},
		{"header_field", `(\s|^|\|)(Received from|TO|From|Date|Sent by|sent|CC|BCC|Cc|Bcc|cc|bcc|Copy To|Sender|Deliver to|Recipient Name|Period|sent email|Forwarded At)[\s\S]*?:.*`, " ", ml},
	}

	lib.signatures = []ruleSpec{
		{"closing_with_name", `^` + alternation(org, []string{
			"Cheers", "Sincerely", `Best (regards)?`, "Many thanks", "kind regards", "Regards",
			"Warm regards", "tnx", "thx", "Thank you", `Thanks (?!to)`, "Assistant", "Assistant:",
			"Executive Assistant:",
		}) + `.*?(\n){1,3}\s?(([A-Z][a-z]{3,20}\s?){1,3})`, " ", ciml},
		{"closing_phrase", `^` + alternation(org, []string{
			"Cheers", "Sincerely", `Best (regards)?`, "Many thanks", "kind regards", "Regards",
			"Warm regards", "thanks", "tnx", "thx", "Thank you", `Thanks (?!to)Assistant`,
			"Assistant:", "Executive Assistant:",
		}) + `.*?[!\w\s$]*`, " ", ciml},
		{"subject_line", `^\s*(Re:|Fw:|Subject:).*?(\n){1,3}`, "\n", ciml},
		{"phone_block", `(\n.+){0,5}\+\x00{0,2}\s?\d{1,3}\s?\-?\(?\d{1,3}\)?(\s?\-?\d{1,4}){1,5}\s?\|(.+\n){0,5}`, "\n", ciml},
		{"voice_message", `Voice message from.*?\d\d\:\d\d\s((P|A)M)?\n(.*\n)+?.+contact the Global.*$`, " ", ciml},
		{"helpdesk_footer", `Global Helpdesk\n.+313(\n.+){2,3}`, "", ciml},
		{"customer_care_footer", `^(Customer Care|IT Customer Experience)\n(.[^\n]+\n){1,4}`, " ", ciml},
	}

	var orgTerms []ruleSpec
	for _, o := range orgs {
		if term := orgTerm(o); term != "" {
			orgTerms = append(orgTerms, ruleSpec{"organization_name", term, " ", ciml})
		}
	}
	lib.fixedTerms = append(orgTerms, []ruleSpec{
		{"best_regards", `best\s+regards`, " ", ciml},
		{"kind_regards", `kind\s+regards`, " ", ciml},
		{"thank_you", `thank\s+you`, " ", ciml},
		{"sent_from_iphone", `sent from my iphone`, " ", ciml},
		{"von_meinem_iphone", `Von meinem iPhone gesendet`, " ", ciml},
		{"pacific_time", `pacific\s+time`, " ", ciml},
		{"confidentiality_notice", `This email is confidential and may be privileged(.+\n)+.+\suse it for any purpose.`, " ", ciml},
		{"removed_notice", `Removed.*?can be found in Emails`, " ", ciml},
		{"linked_call", `[a-z]+\scall was linked to the incident`, " ", ciml},
		{"knowledge_article", `Knowledge article KO.*\:\n.*$`, " ", ciml},
	}...)

	lib.files = []ruleSpec{
		{"file_name", `([\w\d\-.]+\.pdf|[\w\d\-.]+\.docx|[\w\d\-.]+\.doc|[\w\d\-.]+\.pptx|[\w\d\-.]+\.ppt|[\w\d\-.]+\.txt|[\w\d\-.]+\.zip|[\w\d\-.]+\.xlsx|[\w\d\-.]+\.xls)`, PlaceholderFile, none},
	}

	lib.addresses = []ruleSpec{
		{"directory_address", placeholderGuard + `([a-z\-]+\s?\n?){1,3}(\/[a-z0-9\-?]+){2,5}(\@|\/)` + orgToken(internalDomain) + `(\-external|@M[a-z]*)?`, PlaceholderEmail, ciml},
		{"standard_address", placeholderGuard + `[_a-z0-9-]+(\.[_a-z0-9-]+)*@[a-z0-9-]+(\.[a-z0-9-]+)*(\.[a-z]{2,4})`, PlaceholderEmail, ciml},
	}

	lib.redundantNewlines = []ruleSpec{
		{"leading_newlines", `^\n{2,}`, "", none},
		{"newline_runs", `\n{2,}`, "\n\n", none},
		{"trailing_newlines", `\n{2,}$`, "", none},
	}

	lib.strictNewline = []ruleSpec{
		{"lowercase_continuation", `(?<!\n)\n(?=[a-z0-9])`, " ", ml},
	}
	lib.looseNewline = []ruleSpec{
		{"word_continuation", `(?<!\n)\n(?=\w)`, " ", ml},
	}

	lib.spaces = []ruleSpec{
		{"double_spaces", ` {2,}`, " ", ciml},
	}

	lib.names = ruleSpec{"title_case_run", `[A-Z]([a-z]+|\.)(?:\s+[A-Z]([a-z]+|\.))*(?:\s+[a-z][a-z\-]+){0,2}\s+[A-Z]([a-z]+|\.)`, PlaceholderName, none}

	lib.urlSimple = ruleSpec{"simple_url", `(http|ftp|https)?(://)?([\w_-]+(?:(?:\.[\w_-]+)+))([\w.,@?^=%&:/~+#-]*[\w@?^=%&/~+#-])?`, PlaceholderURL, none}
	lib.urlComplex = ruleSpec{"complex_url", complexURLPattern(), PlaceholderURL, regexp2.IgnoreCase}

	lib.senders = ruleSpec{"from_line", `\nFrom:([A-Za-z\s-]*)\n`, "", none}
	lib.mailboxes = ruleSpec{"mailbox", `[a-z0-9.\-+_,&:]+@[a-z0-9.\-+_]+\.[a-z]+`, "", none}

	return lib
}

const tlds = `com|net|org|edu|gov|mil|aero|asia|biz|cat|coop|info|int|jobs|mobi|museum|name|post|pro|tel|travel|xxx|` +
	`ac|ad|ae|af|ag|ai|al|am|an|ao|aq|ar|as|at|au|aw|ax|az|ba|bb|bd|be|bf|bg|bh|bi|bj|bm|bn|bo|br|bs|bt|bv|bw|by|bz|` +
	`ca|cc|cd|cf|cg|ch|ci|ck|cl|cm|cn|co|cr|cs|cu|cv|cx|cy|cz|dd|de|dj|dk|dm|do|dz|ec|ee|eg|eh|er|es|et|eu|` +
	`fi|fj|fk|fm|fo|fr|ga|gb|gd|ge|gf|gg|gh|gi|gl|gm|gn|gp|gq|gr|gs|gt|gu|gw|gy|hk|hm|hn|hr|ht|hu|` +
	`id|ie|il|im|in|io|iq|ir|is|it|je|jm|jo|jp|ke|kg|kh|ki|km|kn|kp|kr|kw|ky|kz|la|lb|lc|li|lk|lr|ls|lt|lu|lv|ly|` +
	`ma|mc|md|me|mg|mh|mk|ml|mm|mn|mo|mp|mq|mr|ms|mt|mu|mv|mw|mx|my|mz|na|nc|ne|nf|ng|ni|nl|no|np|nr|nu|nz|om|` +
	`pa|pe|pf|pg|ph|pk|pl|pm|pn|pr|ps|pt|pw|py|qa|re|ro|rs|ru|rw|sa|sb|sc|sd|se|sg|sh|si|sj|sk|sl|sm|sn|so|sr|ss|st|su|sv|sx|sy|sz|` +
	`tc|td|tf|tg|th|tj|tk|tl|tm|tn|to|tp|tr|tt|tv|tw|tz|ua|ug|uk|us|uy|uz|va|vc|ve|vg|vi|vn|vu|wf|ws|ye|yt|yu|za|zm|zw`

// complexURLPattern is John Gruber's liberal URL matcher with a guard against
// matching the domain part of email addresses.
func complexURLPattern() string {
	balanced := `\([^\s()]*?\([^\s()]+\)[^\s()]*?\)|\([^\s]+?\)`
	return `(?<!@)\b(` +
		`(?:https?:(?:/{1,3}|[a-z0-9%])|[a-z0-9.\-]+[.](?:` + tlds + `)/)` +
		`(?:[^\s()<>{}\[\]]+|` + balanced + `)+` +
		`(?:` + balanced + "|[^\\s`!()\\[\\]{};:'\".,<>?«»“”‘’])" +
		`|(?:(?<!@)[a-z0-9]+(?:[.\-][a-z0-9]+)*[.](?:` + tlds + `)\b/?(?!@))` +
		`)`
}
