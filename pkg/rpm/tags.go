package rpm

// Header index entry data types.
const (
	TypeNull        = 0
	TypeChar        = 1
	TypeInt8        = 2
	TypeInt16       = 3
	TypeInt32       = 4
	TypeInt64       = 5
	TypeString      = 6
	TypeBin         = 7
	TypeStringArray = 8
	TypeI18NString  = 9
)

// Main header tags. Only the subset this tool reads is listed.
const (
	TagName           = 1000
	TagVersion        = 1001
	TagRelease        = 1002
	TagEpoch          = 1003
	TagSummary        = 1004
	TagDescription    = 1005
	TagVendor         = 1011
	TagLicense        = 1014
	TagPackager       = 1015
	TagURL            = 1020
	TagArch           = 1022
	TagFileDigests    = 1035
	TagSourceRPM      = 1044
	TagProvideName    = 1047
	TagRequireFlags   = 1048
	TagRequireName    = 1049
	TagRequireVersion = 1050
	TagProvideFlags   = 1112
	TagProvideVersion = 1113
	TagDirIndexes     = 1116
	TagBaseNames      = 1117
	TagDirNames       = 1118
	TagFileDigestAlgo = 5011
)

// Signature header tags.
const (
	SigTagMD5 = 1004
)

// File digest algorithm IDs as stored in TagFileDigestAlgo. The values
// follow the PGP hash algorithm registry used by rpm.
const (
	digestAlgoMD5    = 1
	digestAlgoSHA256 = 8
)
