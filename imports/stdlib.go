package imports

// stdlibModules is the set of Python standard-library top-level modules.
// Imports of these never produce a package to load.
var stdlibModules = map[string]struct{}{}

func init() {
	for _, name := range []string{
		"abc", "aifc", "argparse", "array", "ast", "asyncio", "atexit",
		"audioop", "base64", "bdb", "binascii", "bisect", "builtins", "bz2",
		"calendar", "cgi", "cgitb", "chunk", "cmath", "cmd", "code", "codecs",
		"codeop", "collections", "colorsys", "compileall", "concurrent",
		"configparser", "contextlib", "contextvars", "copy", "copyreg",
		"cProfile", "crypt", "csv", "ctypes", "curses", "dataclasses",
		"datetime", "dbm", "decimal", "difflib", "dis", "doctest", "email",
		"encodings", "ensurepip", "enum", "errno", "faulthandler", "fcntl",
		"filecmp", "fileinput", "fnmatch", "fractions", "ftplib", "functools",
		"gc", "getopt", "getpass", "gettext", "glob", "graphlib", "grp",
		"gzip", "hashlib", "heapq", "hmac", "html", "http", "imaplib",
		"importlib", "inspect", "io", "ipaddress", "itertools", "json",
		"keyword", "linecache", "locale", "logging", "lzma", "mailbox",
		"marshal", "math", "mimetypes", "mmap", "multiprocessing", "netrc",
		"numbers", "operator", "optparse", "os", "pathlib", "pdb", "pickle",
		"pickletools", "pkgutil", "platform", "plistlib", "poplib", "posix",
		"pprint", "profile", "pstats", "pty", "pwd", "py_compile", "pyclbr",
		"pydoc", "queue", "quopri", "random", "re", "readline", "reprlib",
		"resource", "runpy", "sched", "secrets", "select", "selectors",
		"shelve", "shlex", "shutil", "signal", "site", "smtplib", "socket",
		"socketserver", "sqlite3", "ssl", "stat", "statistics", "string",
		"stringprep", "struct", "subprocess", "symtable", "sys", "sysconfig",
		"syslog", "tabnanny", "tarfile", "telnetlib", "tempfile", "termios",
		"test", "textwrap", "threading", "time", "timeit", "tkinter", "token",
		"tokenize", "tomllib", "trace", "traceback", "tracemalloc", "tty",
		"turtle", "types", "typing", "unicodedata", "unittest", "urllib",
		"uuid", "venv", "warnings", "wave", "weakref", "webbrowser",
		"wsgiref", "xml", "xmlrpc", "zipapp", "zipfile", "zipimport", "zlib",
		"zoneinfo", "__future__",
	} {
		stdlibModules[name] = struct{}{}
	}
}

// IsStdlibModule reports whether name is a Python standard-library module.
func IsStdlibModule(name string) bool {
	_, ok := stdlibModules[name]
	return ok
}
