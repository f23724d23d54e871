// Package suppliers infers the supplying organization of a package from
// its vendor string, packager, release tag or homepage.
package suppliers

import (
	"net/url"
	"strings"
)

// Guess is an inferred supplier. Name is empty when nothing matched;
// renderers map that to NOASSERTION.
type Guess struct {
	Name string
	URL  string
}

type keywordEntry struct {
	keyword string
	guess   Guess
}

// vendorKeywords is matched, in order, against the vendor and packager
// strings. First hit wins, so the more specific entries come first.
var vendorKeywords = []keywordEntry{
	{"openeuler", Guess{"openEuler Community", "https://www.openeuler.org"}},
	{"opencloudos", Guess{"OpenCloudOS Community", "https://www.opencloudos.org"}},
	{"anolis", Guess{"OpenAnolis Community", "https://openanolis.cn"}},
	{"kylin", Guess{"KylinSoft Co., Ltd.", "https://www.kylinos.cn"}},
	{"uniontech", Guess{"UnionTech Software Technology Co., Ltd.", "https://www.uniontech.com"}},
	{"deepin", Guess{"Deepin Community", "https://www.deepin.org"}},
	{"huawei", Guess{"Huawei Technologies Co., Ltd.", "https://www.huawei.com"}},
	{"alibaba", Guess{"Alibaba Cloud", "https://www.alibabacloud.com"}},
	{"red hat", Guess{"Red Hat, Inc.", "https://www.redhat.com"}},
	{"redhat", Guess{"Red Hat, Inc.", "https://www.redhat.com"}},
	{"fedora", Guess{"Fedora Project", "https://fedoraproject.org"}},
	{"centos", Guess{"CentOS Project", "https://www.centos.org"}},
	{"suse", Guess{"SUSE LLC", "https://www.suse.com"}},
	{"canonical", Guess{"Canonical Ltd.", "https://canonical.com"}},
	{"ubuntu", Guess{"Canonical Ltd.", "https://canonical.com"}},
	{"debian", Guess{"Debian Project", "https://www.debian.org"}},
}

// releaseMarkers map the distro suffix embedded in a release tag (for
// example "12.oe2403" or "3.el9") to the building organization.
var releaseMarkers = []keywordEntry{
	{".oe", Guess{"openEuler Community", "https://www.openeuler.org"}},
	{".ocs", Guess{"OpenCloudOS Community", "https://www.opencloudos.org"}},
	{".an", Guess{"OpenAnolis Community", "https://openanolis.cn"}},
	{".ky", Guess{"KylinSoft Co., Ltd.", "https://www.kylinos.cn"}},
	{".uel", Guess{"UnionTech Software Technology Co., Ltd.", "https://www.uniontech.com"}},
	{".el", Guess{"Red Hat, Inc.", "https://www.redhat.com"}},
	{".fc", Guess{"Fedora Project", "https://fedoraproject.org"}},
	{".deb", Guess{"Debian Project", "https://www.debian.org"}},
}

// Infer resolves a supplier, trying the strongest signal first: the vendor
// string, then the packager, then the release tag marker, and finally the
// homepage domain as a weak originator-style fallback.
func Infer(vendor, packager, release, homepage string) Guess {
	if g, ok := matchKeywords(vendor); ok {
		return g
	}
	if g, ok := matchKeywords(packager); ok {
		return g
	}
	if g, ok := matchRelease(release); ok {
		return g
	}
	if host := homepageHost(homepage); host != "" {
		return Guess{Name: host, URL: homepage}
	}
	return Guess{}
}

func matchKeywords(s string) (Guess, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Guess{}, false
	}
	for _, e := range vendorKeywords {
		if strings.Contains(s, e.keyword) {
			return e.guess, true
		}
	}
	return Guess{}, false
}

func matchRelease(release string) (Guess, bool) {
	release = strings.ToLower(release)
	if release == "" {
		return Guess{}, false
	}
	for _, e := range releaseMarkers {
		i := strings.Index(release, e.keyword)
		if i < 0 {
			continue
		}
		// The marker must be followed by a digit ("oe2403", "el9"), not be
		// a coincidental substring of a longer word.
		rest := release[i+len(e.keyword):]
		if len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9' {
			return e.guess, true
		}
	}
	return Guess{}, false
}

func homepageHost(homepage string) string {
	if homepage == "" {
		return ""
	}
	u, err := url.Parse(homepage)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(u.Host, "www.")
}
