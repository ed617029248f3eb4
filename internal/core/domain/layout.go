package domain

const (
	// ConfigFileName is the optional project configuration file.
	ConfigFileName = "kiln.yaml"
	// ConfigEnvVar points at an explicit configuration file.
	ConfigEnvVar = "KILN_CONFIG"

	// CacheDirName is the directory created under the user cache directory.
	CacheDirName = "kiln"

	// DefaultInstallRoot is where built binaries are installed.
	DefaultInstallRoot = "/usr/local/bin"
	// DefaultSchemaVersion is the leading cache key segment.
	DefaultSchemaVersion = "v1"
	// DefaultJobs is the parallelism passed to the native build.
	DefaultJobs = 4
	// DefaultURLTemplate locates a GNU source tarball.
	DefaultURLTemplate = "https://ftp.gnu.org/gnu/{tool}/{tool}-{version}.tar.gz"

	// DirPerm is the default permission for directories kiln creates.
	DirPerm = 0o750
	// FilePerm is the default permission for data files.
	FilePerm = 0o644
	// ExecPerm is the permission for installed binaries.
	ExecPerm = 0o755
)
