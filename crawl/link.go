package crawl

import (
	"context"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/fwojciec/webscrape"
	"golang.org/x/net/publicsuffix"
)

// Normalize resolves link against base and returns it without a fragment.
// HTML entities in link are unescaped first, and dot segments in the
// resulting path are collapsed.
func Normalize(base, link string) (string, error) {
	link, _, _ = strings.Cut(link, "#")
	link = strings.TrimSpace(html.UnescapeString(link))

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", webscrape.Errorf(webscrape.EINVALID, "invalid base URL %q: %v", base, err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", webscrape.Errorf(webscrape.EINVALID, "invalid link %q: %v", link, err)
	}

	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.RawFragment = ""
	return resolved.String(), nil
}

// ExtractDomain approximates the registrable domain of rawURL: trailing host
// labels that appear in a fixed list of top-level and second-level suffixes
// are kept together with the label preceding them.
//
//	ExtractDomain("http://www.google.com.au/tos.html") == "google.com.au"
func ExtractDomain(rawURL string) string {
	host := rawURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host, _, _ = strings.Cut(host, "/")
	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	host = strings.ToLower(host)

	var labels []string
	for _, label := range strings.Split(host, ".") {
		if _, ok := domainSuffixes[label]; ok {
			labels = append(labels, label)
		} else {
			labels = []string{label}
		}
	}
	return strings.Join(labels, ".")
}

// PublicSuffixDomain returns the registrable domain of rawURL according to
// the public suffix list, falling back to the host name.
func PublicSuffixDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}

// SameDomain reports whether two registrable domains belong to one site.
// Either may contain the other, so subdomain variants still match.
func SameDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// IgnoredExtension reports whether rawURL points at a known non-HTML
// media type.
func IgnoredExtension(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	_, ok := ignoredExtensions[strings.ToLower(path.Ext(p))]
	return ok
}

// Score ranks a URL for priority crawling. Lower is better: pages about
// contacts first, then about and help pages, then everything else, with
// shorter URLs preferred within each group.
func Score(rawURL string) float64 {
	lower := strings.ToLower(rawURL)
	var score float64
	switch {
	case strings.Contains(lower, "contact"):
		score = 0
	case strings.Contains(lower, "about"), strings.Contains(lower, "help"):
		score = 1000
	default:
		score = 2000
	}
	return score + float64(len(rawURL))
}

// LinkFilter decides which discovered links are followed.
type LinkFilter struct {
	// Domain is the registrable domain of the seed. Empty disables the
	// domain check.
	Domain string
	// DomainFunc computes registrable domains. Defaults to ExtractDomain.
	DomainFunc func(rawURL string) string

	Allow *regexp.Regexp // when set, links must match
	Ban   *regexp.Regexp // when set, links must not match

	Robots    webscrape.RobotsPolicy // optional
	UserAgent string

	// Cache and Recrawl skip links that are already cached unless Recrawl
	// is set.
	Cache   webscrape.Cache
	Recrawl bool
}

// Valid reports whether link should be crawled.
func (f *LinkFilter) Valid(ctx context.Context, link string) bool {
	if IgnoredExtension(link) {
		return false
	}

	u, err := url.Parse(link)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if f.Domain != "" {
		domainOf := f.DomainFunc
		if domainOf == nil {
			domainOf = ExtractDomain
		}
		if !SameDomain(f.Domain, domainOf(link)) {
			return false
		}
	}

	if f.Allow != nil && !f.Allow.MatchString(link) {
		return false
	}
	if f.Ban != nil && f.Ban.MatchString(link) {
		return false
	}

	if f.Robots != nil && !f.Robots.CanFetch(ctx, f.UserAgent, link) {
		return false
	}

	if !f.Recrawl && f.Cache != nil && f.Cache.Contains(ctx, link) {
		return false
	}
	return true
}

// ignoredExtensions lists file extensions of non-HTML media.
var ignoredExtensions = map[string]struct{}{
	".ai": {}, ".aif": {}, ".aifc": {}, ".aiff": {}, ".asc": {}, ".au": {},
	".avi": {}, ".bcpio": {}, ".bin": {}, ".c": {}, ".cc": {}, ".ccad": {},
	".cdf": {}, ".class": {}, ".cpio": {}, ".cpt": {}, ".csh": {}, ".css": {},
	".csv": {}, ".dcr": {}, ".dir": {}, ".dms": {}, ".doc": {}, ".drw": {},
	".dvi": {}, ".dwg": {}, ".dxf": {}, ".dxr": {}, ".eps": {}, ".etx": {},
	".exe": {}, ".ez": {}, ".f": {}, ".f90": {}, ".fli": {}, ".flv": {},
	".gif": {}, ".gtar": {}, ".gz": {}, ".h": {}, ".hdf": {}, ".hh": {},
	".hqx": {}, ".ice": {}, ".ico": {}, ".ief": {}, ".iges": {}, ".igs": {},
	".ips": {}, ".ipx": {}, ".jpe": {}, ".jpeg": {}, ".jpg": {}, ".js": {},
	".kar": {}, ".latex": {}, ".lha": {}, ".lsp": {}, ".lzh": {}, ".m": {},
	".man": {}, ".me": {}, ".mesh": {}, ".mid": {}, ".midi": {}, ".mif": {},
	".mime": {}, ".mov": {}, ".movie": {}, ".mp2": {}, ".mp3": {}, ".mpe": {},
	".mpeg": {}, ".mpg": {}, ".mpga": {}, ".ms": {}, ".msh": {}, ".nc": {},
	".oda": {}, ".pbm": {}, ".pdb": {}, ".pdf": {}, ".pgm": {}, ".pgn": {},
	".png": {}, ".pnm": {}, ".pot": {}, ".ppm": {}, ".pps": {}, ".ppt": {},
	".ppz": {}, ".pre": {}, ".prt": {}, ".ps": {}, ".qt": {}, ".ra": {},
	".ram": {}, ".ras": {}, ".rgb": {}, ".rm": {}, ".roff": {}, ".rpm": {},
	".rtf": {}, ".rtx": {}, ".scm": {}, ".set": {}, ".sgm": {}, ".sgml": {},
	".sh": {}, ".shar": {}, ".silo": {}, ".sit": {}, ".skd": {}, ".skm": {},
	".skp": {}, ".skt": {}, ".smi": {}, ".smil": {}, ".snd": {}, ".sol": {},
	".spl": {}, ".src": {}, ".step": {}, ".stl": {}, ".stp": {}, ".sv4cpio": {},
	".sv4crc": {}, ".swf": {}, ".t": {}, ".tar": {}, ".tcl": {}, ".tex": {},
	".texi": {}, ".tif": {}, ".tiff": {}, ".tr": {}, ".tsi": {}, ".tsp": {},
	".tsv": {}, ".txt": {}, ".unv": {}, ".ustar": {}, ".vcd": {}, ".vda": {},
	".viv": {}, ".vivo": {}, ".vrml": {}, ".w2p": {}, ".wav": {}, ".wrl": {},
	".xbm": {}, ".xlc": {}, ".xll": {}, ".xlm": {}, ".xls": {}, ".xlw": {},
	".xml": {}, ".xpm": {}, ".xsl": {}, ".xwd": {}, ".xyz": {}, ".zip": {},
}

// domainSuffixes lists labels treated as part of a public suffix.
var domainSuffixes = map[string]struct{}{
	"ac": {}, "ad": {}, "ae": {}, "aero": {}, "af": {}, "ag": {}, "ai": {},
	"al": {}, "am": {}, "an": {}, "ao": {}, "aq": {}, "ar": {}, "arpa": {},
	"as": {}, "asia": {}, "at": {}, "au": {}, "aw": {}, "ax": {}, "az": {},
	"ba": {}, "bb": {}, "bd": {}, "be": {}, "bf": {}, "bg": {}, "bh": {},
	"bi": {}, "biz": {}, "bj": {}, "bm": {}, "bn": {}, "bo": {}, "br": {},
	"bs": {}, "bt": {}, "bv": {}, "bw": {}, "by": {}, "bz": {}, "ca": {},
	"cat": {}, "cc": {}, "cd": {}, "cf": {}, "cg": {}, "ch": {}, "ci": {},
	"ck": {}, "cl": {}, "cm": {}, "cn": {}, "co": {}, "com": {}, "coop": {},
	"cr": {}, "cu": {}, "cv": {}, "cx": {}, "cy": {}, "cz": {}, "de": {},
	"dj": {}, "dk": {}, "dm": {}, "do": {}, "dz": {}, "ec": {}, "edu": {},
	"ee": {}, "eg": {}, "er": {}, "es": {}, "et": {}, "eu": {}, "fi": {},
	"fj": {}, "fk": {}, "fm": {}, "fo": {}, "fr": {}, "ga": {}, "gb": {},
	"gd": {}, "ge": {}, "gf": {}, "gg": {}, "gh": {}, "gi": {}, "gl": {},
	"gm": {}, "gn": {}, "gov": {}, "gp": {}, "gq": {}, "gr": {}, "gs": {},
	"gt": {}, "gu": {}, "gw": {}, "gy": {}, "hk": {}, "hm": {}, "hn": {},
	"hr": {}, "ht": {}, "hu": {}, "id": {}, "ie": {}, "il": {}, "im": {},
	"in": {}, "info": {}, "int": {}, "io": {}, "iq": {}, "ir": {}, "is": {},
	"it": {}, "je": {}, "jm": {}, "jo": {}, "jobs": {}, "jp": {}, "ke": {},
	"kg": {}, "kh": {}, "ki": {}, "km": {}, "kn": {}, "kp": {}, "kr": {},
	"kw": {}, "ky": {}, "kz": {}, "la": {}, "lb": {}, "lc": {}, "li": {},
	"lk": {}, "lr": {}, "ls": {}, "lt": {}, "lu": {}, "lv": {}, "ly": {},
	"ma": {}, "mc": {}, "md": {}, "me": {}, "mg": {}, "mh": {}, "mil": {},
	"mk": {}, "ml": {}, "mm": {}, "mn": {}, "mo": {}, "mobi": {}, "mp": {},
	"mq": {}, "mr": {}, "ms": {}, "mt": {}, "mu": {}, "mv": {}, "mw": {},
	"mx": {}, "my": {}, "mz": {}, "na": {}, "name": {}, "nc": {}, "ne": {},
	"net": {}, "nf": {}, "ng": {}, "ni": {}, "nl": {}, "no": {}, "np": {},
	"nr": {}, "nu": {}, "nz": {}, "om": {}, "org": {}, "pa": {}, "pe": {},
	"pf": {}, "pg": {}, "ph": {}, "pk": {}, "pl": {}, "pm": {}, "pn": {},
	"pr": {}, "pro": {}, "ps": {}, "pt": {}, "pw": {}, "py": {}, "qa": {},
	"re": {}, "ro": {}, "rs": {}, "ru": {}, "rw": {}, "sa": {}, "sb": {},
	"sc": {}, "sd": {}, "se": {}, "sg": {}, "sh": {}, "si": {}, "sj": {},
	"sk": {}, "sl": {}, "sm": {}, "sn": {}, "so": {}, "sr": {}, "st": {},
	"su": {}, "sv": {}, "sy": {}, "sz": {}, "tc": {}, "td": {}, "tel": {},
	"tf": {}, "tg": {}, "th": {}, "tj": {}, "tk": {}, "tl": {}, "tm": {},
	"tn": {}, "to": {}, "tp": {}, "tr": {}, "tt": {}, "tv": {}, "tw": {},
	"tz": {}, "ua": {}, "ug": {}, "uk": {}, "us": {}, "uy": {}, "uz": {},
	"va": {}, "vc": {}, "ve": {}, "vg": {}, "vi": {}, "vn": {}, "vu": {},
	"wf": {}, "ws": {}, "xn": {}, "ye": {}, "yt": {}, "za": {}, "zm": {},
	"zw": {},
}
